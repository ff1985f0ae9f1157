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

type MongoWishlistRepository struct {
	collection *mongo.Collection
}

func NewMongoWishlistRepository(db *mongo.Database) *MongoWishlistRepository {
	return &MongoWishlistRepository{
		collection: db.Collection("wishlists"),
	}
}

func (m *MongoWishlistRepository) GetWishlist(ctx context.Context, owner string) (*domain.Wishlist, error) {
	var wishlist domain.Wishlist

	err := m.collection.FindOne(ctx, bson.M{"owner": owner}).Decode(&wishlist)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWishlistNotFound
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}

	wishlist.SortByAddedAt()
	return &wishlist, nil
}

func (m *MongoWishlistRepository) UpsertWishlist(ctx context.Context, wishlist *domain.Wishlist) error {
	wishlist.UpdatedAt = time.Now()
	if wishlist.Items == nil {
		wishlist.Items = []domain.WishlistItem{}
	}

	filter := bson.M{"owner": wishlist.Owner}
	update := bson.M{"$set": wishlist}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert wishlist: %w", err)
	}
	return nil
}

func (m *MongoWishlistRepository) AddItem(ctx context.Context, owner string, item domain.WishlistItem) error {
	now := time.Now()
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}

	// Only matches while the product is absent, so a present item keeps its AddedAt.
	guarded := bson.M{"owner": owner, "items.product_id": bson.M{"$ne": item.ProductID}}
	update := bson.M{
		"$push": bson.M{"items": item},
		"$set":  bson.M{"updated_at": now},
	}

	_, err := m.collection.UpdateOne(ctx, guarded, update, options.Update().SetUpsert(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}

	// The wishlist exists: it either holds the product already or was created
	// concurrently without it.
	if _, err := m.collection.UpdateOne(ctx, guarded, update); err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

func (m *MongoWishlistRepository) RemoveItem(ctx context.Context, owner string, productID int64) error {
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"product_id": productID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, bson.M{"owner": owner}, update)
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrWishlistNotFound
	}
	return nil
}

func (m *MongoWishlistRepository) DeleteWishlist(ctx context.Context, owner string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner": owner})
	if err != nil {
		return fmt.Errorf("failed to delete wishlist: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrWishlistNotFound
	}
	return nil
}

func (m *MongoWishlistRepository) TakeWishlist(ctx context.Context, owner string) (*domain.Wishlist, error) {
	var wishlist domain.Wishlist
	err := m.collection.FindOneAndDelete(ctx, bson.M{"owner": owner}).Decode(&wishlist)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrWishlistNotFound
		}
		return nil, fmt.Errorf("failed to take wishlist: %w", err)
	}
	return &wishlist, nil
}

func (m *MongoWishlistRepository) CreateIndexes(ctx context.Context) error {
	return createOwnerIndexes(ctx, m.collection)
}
