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

type WishlistService struct {
	repo    repository.WishlistRepository
	cache   *invalidator[domain.Wishlist]
	catalog catalog.Catalog
	sfg     singleflight.Group
	log     *slog.Logger
}

func NewWishlistService(repo repository.WishlistRepository, c cache.SnapshotCache[domain.Wishlist], cat catalog.Catalog, log *slog.Logger) *WishlistService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "wishlist_service")
	return &WishlistService{
		repo:    repo,
		cache:   newInvalidator(c, log),
		catalog: cat,
		log:     log,
	}
}

func (s *WishlistService) GetWishlist(ctx context.Context, owner string) (*domain.Wishlist, error) {
	v, err, _ := s.sfg.Do(owner, func() (interface{}, error) {
		w, err := s.cache.cache.Get(ctx, owner)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "owner", owner, "error", err)
		}

		gen := s.cache.generation(owner)
		w, err = s.repo.GetWishlist(ctx, owner)
		if errors.Is(err, repository.ErrWishlistNotFound) {
			return &domain.Wishlist{Owner: owner, Items: []domain.WishlistItem{}}, nil
		}
		if err != nil {
			return nil, err
		}
		if w.Items == nil {
			w.Items = []domain.WishlistItem{}
		}
		w.SortByAddedAt()

		s.cache.store(ctx, owner, gen, w)
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Wishlist).Clone(), nil
}

// AddItem is a no-op for a product already on the wishlist.
func (s *WishlistService) AddItem(ctx context.Context, owner string, productID int64) error {
	if productID <= 0 {
		return ErrInvalidProductID
	}
	if _, err := s.catalog.Lookup(ctx, productID); err != nil {
		return err
	}
	if err := s.repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: productID}); err != nil {
		s.log.ErrorContext(ctx, "repo add wishlist item error", "owner", owner, "product_id", productID, "error", err)
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

func (s *WishlistService) RemoveItem(ctx context.Context, owner string, productID int64) error {
	if productID <= 0 {
		return ErrInvalidProductID
	}
	err := s.repo.RemoveItem(ctx, owner, productID)
	if err != nil && !errors.Is(err, repository.ErrWishlistNotFound) {
		s.log.ErrorContext(ctx, "repo remove wishlist item error", "owner", owner, "product_id", productID, "error", err)
		return err
	}

	s.cache.invalidate(owner)
	return nil
}

func (s *WishlistService) Contains(ctx context.Context, owner string, productID int64) (bool, error) {
	if productID <= 0 {
		return false, ErrInvalidProductID
	}
	w, err := s.GetWishlist(ctx, owner)
	if err != nil {
		return false, err
	}
	return w.Contains(productID), nil
}

// Merge takes from's wishlist and adds each of its products to into's. A
// product already in into keeps its AddedAt.
func (s *WishlistService) Merge(ctx context.Context, from, into string) error {
	anon, err := s.repo.TakeWishlist(ctx, from)
	if errors.Is(err, repository.ErrWishlistNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim anonymous wishlist: %w", err)
	}
	defer s.cache.invalidate(from, into)

	for i, item := range anon.Items {
		if err := s.repo.AddItem(ctx, into, item); err != nil {
			s.restore(ctx, from, anon.Items[i:])
			return fmt.Errorf("merge wishlist item %d: %w", item.ProductID, err)
		}
	}

	s.log.InfoContext(ctx, "wishlist merged", "from", from, "into", into, "items", len(anon.Items))
	return nil
}

func (s *WishlistService) restore(ctx context.Context, owner string, items []domain.WishlistItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		if err := s.repo.AddItem(ctx, owner, item); err != nil {
			s.log.ErrorContext(ctx, "failed to restore unmerged wishlist item", "owner", owner, "product_id", item.ProductID, "error", err)
		}
	}
}
