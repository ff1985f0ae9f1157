package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// addItemAttempts bounds the bump/push rounds of AddItem under contention.
const addItemAttempts = 5

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"owner": owner}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoCartRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}

	filter := bson.M{"owner": cart.Owner}
	update := bson.M{"$set": cart}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

// AddItem never reads the cart first. An existing line is bumped by a single
// pipeline update that applies the cap; otherwise the line is pushed under a
// filter that only matches while the product is still absent. The upsert of a
// brand new cart races on the unique owner index, so a duplicate key error
// means someone else got there first and the loop tries again.
func (m *MongoCartRepository) AddItem(ctx context.Context, owner string, item domain.CartItem) error {
	now := time.Now()
	item.AddedAt = now
	item.Quantity = capQuantity(item.Quantity)

	for range addItemAttempts {
		bumped, err := m.bumpItem(ctx, owner, item, now)
		if err != nil {
			return err
		}
		if bumped {
			return nil
		}

		guarded := bson.M{"owner": owner, "items.product_id": bson.M{"$ne": item.ProductID}}
		update := bson.M{
			"$push":        bson.M{"items": item},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		}
		_, err = m.collection.UpdateOne(ctx, guarded, update, options.Update().SetUpsert(true))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add new item: %w", err)
		}
	}
	return fmt.Errorf("failed to add item to cart %s: too much contention", owner)
}

func (m *MongoCartRepository) bumpItem(ctx context.Context, owner string, item domain.CartItem, now time.Time) (bool, error) {
	filter := bson.M{"owner": owner, "items.product_id": item.ProductID}
	fields := bson.M{
		"quantity": bson.M{"$min": bson.A{
			bson.M{"$add": bson.A{"$$it.quantity", item.Quantity}},
			domain.MaxItemQuantity,
		}},
	}
	if item.ProductSnapshot != (domain.ProductSummary{}) {
		fields["product_snapshot"] = bson.M{"$literal": item.ProductSnapshot}
	}
	line := bson.M{"$mergeObjects": bson.A{"$$it", fields}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"items": bson.M{"$map": bson.M{
				"input": "$items",
				"as":    "it",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$it.product_id", item.ProductID}},
					line,
					"$$it",
				}},
			}},
			"updated_at": bson.M{"$literal": now},
		}}},
	}

	result, err := m.collection.UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return false, fmt.Errorf("failed to update existing item: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (m *MongoCartRepository) UpdateItemQuantity(ctx context.Context, owner string, productID int64, quantity int) error {
	filter := bson.M{
		"owner":            owner,
		"items.product_id": productID,
	}
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": capQuantity(quantity),
			"updated_at":             time.Now(),
		},
	}
	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RemoveItem succeeds when the product is not in the cart; it only reports
// ErrCartNotFound when the owner has no cart at all.
func (m *MongoCartRepository) RemoveItem(ctx context.Context, owner string, productID int64) error {
	filter := bson.M{"owner": owner}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"product_id": productID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, owner string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner": owner})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

// TakeCart removes the owner's cart and returns what it held. Of two
// concurrent calls only one gets the cart.
func (m *MongoCartRepository) TakeCart(ctx context.Context, owner string) (*domain.Cart, error) {
	var cart domain.Cart
	err := m.collection.FindOneAndDelete(ctx, bson.M{"owner": owner}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to take cart: %w", err)
	}
	return &cart, nil
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	return createOwnerIndexes(ctx, m.collection)
}

func createOwnerIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(abandonedAfter.Seconds())),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", collection.Name(), err)
	}
	return nil
}
