// Package service implements cart and wishlist use cases over a repository,
// a read-through snapshot cache and the product catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/fjod/go_cart/cartsync/internal/server/cache"
	"github.com/fjod/go_cart/cartsync/internal/server/catalog"
	"github.com/fjod/go_cart/cartsync/internal/server/repository"
)

type CartService struct {
	repo    repository.CartRepository
	cache   *invalidator[domain.Cart]
	catalog catalog.Catalog
	sfg     singleflight.Group // prevents cache stampede
	log     *slog.Logger
}

func NewCartService(repo repository.CartRepository, c cache.SnapshotCache[domain.Cart], cat catalog.Catalog, log *slog.Logger) *CartService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "cart_service")
	return &CartService{
		repo:    repo,
		cache:   newInvalidator(c, log),
		catalog: cat,
		log:     log,
	}
}

// GetCart returns the owner's cart with its total computed; an owner without a
// cart gets an empty one.
func (s *CartService) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(owner, func() (interface{}, error) {
		cart, err := s.cache.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "owner", owner, "error", err)
		}

		gen := s.cache.generation(owner)
		cart, err = s.repo.GetCart(ctx, owner)
		if errors.Is(err, repository.ErrCartNotFound) {
			return &domain.Cart{Owner: owner, Items: []domain.CartItem{}}, nil
		}
		if err != nil {
			return nil, err
		}
		if cart.Items == nil {
			cart.Items = []domain.CartItem{}
		}
		cart.Total = cart.ComputeTotal()

		s.cache.store(ctx, owner, gen, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight hands the same pointer to every waiter.
	return v.(*domain.Cart).Clone(), nil
}

// AddItem adds quantity to the product's line, creating it if needed. The line
// never exceeds domain.MaxItemQuantity.
func (s *CartService) AddItem(ctx context.Context, owner string, productID int64, quantity int) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	product, err := s.catalog.Lookup(ctx, productID)
	if err != nil {
		return err
	}

	item := domain.CartItem{
		ProductID:       productID,
		Quantity:        quantity,
		ProductSnapshot: product,
	}
	if err := s.repo.AddItem(ctx, owner, item); err != nil {
		s.log.ErrorContext(ctx, "repo add item error", "owner", owner, "product_id", productID, "error", err)
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, owner string, productID int64, quantity int) error {
	if err := validate(productID, quantity); err != nil {
		return err
	}
	if err := s.repo.UpdateItemQuantity(ctx, owner, productID, quantity); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			s.log.ErrorContext(ctx, "repo update item quantity error", "owner", owner, "product_id", productID, "error", err)
		}
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

// RemoveItem is idempotent.
func (s *CartService) RemoveItem(ctx context.Context, owner string, productID int64) error {
	if productID <= 0 {
		return ErrInvalidProductID
	}
	err := s.repo.RemoveItem(ctx, owner, productID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.ErrorContext(ctx, "repo remove item error", "owner", owner, "product_id", productID, "error", err)
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, owner string) error {
	err := s.repo.DeleteCart(ctx, owner)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.ErrorContext(ctx, "repo delete cart error", "owner", owner, "error", err)
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

// Merge folds the anonymous cart of from into the account cart of into. The
// anonymous cart is taken first, so of two concurrent merges only one sees its
// lines, and each line is then added to the account like a regular AddItem.
// Lines that could not be added go back to from for the next attempt.
func (s *CartService) Merge(ctx context.Context, from, into string) error {
	anon, err := s.repo.TakeCart(ctx, from)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim anonymous cart: %w", err)
	}
	defer s.cache.invalidate(from, into)

	for i, item := range anon.Items {
		if err := s.repo.AddItem(ctx, into, item); err != nil {
			s.restore(ctx, from, anon.Items[i:])
			return fmt.Errorf("merge cart line %d: %w", item.ProductID, err)
		}
	}

	s.log.InfoContext(ctx, "cart merged", "from", from, "into", into, "lines", len(anon.Items))
	return nil
}

func (s *CartService) restore(ctx context.Context, owner string, items []domain.CartItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if err := s.repo.AddItem(ctx, owner, item); err != nil {
			s.log.ErrorContext(ctx, "failed to restore unmerged cart line", "owner", owner, "product_id", item.ProductID, "error", err)
		}
	}
}

func validate(productID int64, quantity int) error {
	if productID <= 0 {
		return ErrInvalidProductID
	}
	if quantity < 1 || quantity > domain.MaxItemQuantity {
		return ErrInvalidQuantity
	}
	return nil
}
