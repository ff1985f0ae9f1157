package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cartsync/internal/aggregate"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

type WishlistRemote interface {
	GetWishlist(ctx context.Context) (*domain.Wishlist, error)
	AddToWishlist(ctx context.Context, productID int64) error
	RemoveFromWishlist(ctx context.Context, productID int64) error
	CheckWishlist(ctx context.Context, productID int64) (bool, error)
}

// checkTimeout bounds a shared membership check once its callers have gone.
const checkTimeout = 30 * time.Second

type WishlistCache struct {
	remote WishlistRemote
	store  *store[domain.Wishlist]
	count  *aggregate.Memo[domain.Wishlist, int]
	sfg    singleflight.Group // collapses concurrent membership checks per identity and product
	epoch  atomic.Uint64      // bumped by Reset
	scope  func() string
	maxAge time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewWishlistCache(r WishlistRemote, opts ...Option) *WishlistCache {
	o := buildOptions(opts)
	return &WishlistCache{
		remote: r,
		store:  newStore(cloneWishlist, o.now),
		count:  aggregate.NewMemo(aggregate.WishlistItemCount),
		scope:  o.scope,
		maxAge: o.maxAge,
		now:    o.now,
		log:    o.log.With("component", "wishlist_cache"),
	}
}

func (w *WishlistCache) GetWishlist(ctx context.Context) (*domain.Wishlist, error) {
	wishlist, err := w.remote.GetWishlist(ctx)
	if err != nil {
		if remote.IsUnauthorized(err) {
			w.log.WarnContext(ctx, "identity rejected, resetting wishlist", "error", err)
			w.store.reset()
		} else {
			w.log.WarnContext(ctx, "wishlist refresh failed, keeping last snapshot", "error", err)
		}
		return nil, err
	}

	w.store.replace(wishlist)
	w.log.DebugContext(ctx, "wishlist replaced", "items", len(wishlist.Items))
	return wishlist.Clone(), nil
}

func (w *WishlistCache) AddToWishlist(ctx context.Context, productID int64) error {
	const op = "add to wishlist"
	if err := remote.ValidateProductID(op, productID); err != nil {
		return err
	}
	if err := w.remote.AddToWishlist(ctx, productID); err != nil {
		return err
	}
	return w.refreshAfterWrite(ctx, op)
}

// RemoveFromWishlist is idempotent.
func (w *WishlistCache) RemoveFromWishlist(ctx context.Context, productID int64) error {
	const op = "remove from wishlist"
	if err := remote.ValidateProductID(op, productID); err != nil {
		return err
	}
	if err := w.remote.RemoveFromWishlist(ctx, productID); err != nil {
		return err
	}
	return w.refreshAfterWrite(ctx, op)
}

// IsMember answers from the snapshot while it is fresh and asks the backend
// directly otherwise (typically before the first GetWishlist has resolved).
// Concurrent checks for one product under one identity share a request; a
// caller whose ctx ends stops waiting without failing the others.
func (w *WishlistCache) IsMember(ctx context.Context, productID int64) (bool, error) {
	if err := remote.ValidateProductID("check wishlist", productID); err != nil {
		return false, err
	}
	if snap, ok := w.fresh(); ok {
		return snap.Contains(productID), nil
	}

	key := fmt.Sprintf("%d/%s/%d", w.epoch.Load(), w.scope(), productID)
	ch := w.sfg.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkTimeout)
		defer cancel()
		return w.remote.CheckWishlist(shared, productID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (w *WishlistCache) fresh() (*domain.Wishlist, bool) {
	snap, loadedAt := w.store.get()
	if snap == nil {
		return nil, false
	}
	if w.maxAge > 0 && w.now().Sub(loadedAt) > w.maxAge {
		return nil, false
	}
	return snap, true
}

func (w *WishlistCache) refreshAfterWrite(ctx context.Context, op string) error {
	if _, err := w.GetWishlist(ctx); err != nil {
		return &RefreshError{Op: op, Err: err}
	}
	return nil
}

func (w *WishlistCache) Snapshot() *domain.Wishlist {
	snap, _ := w.store.get()
	return cloneWishlist(snap)
}

func (w *WishlistCache) Loaded() bool {
	snap, _ := w.store.get()
	return snap != nil
}

func (w *WishlistCache) ItemCount() int {
	snap, _ := w.store.get()
	return w.count.Get(snap)
}

func (w *WishlistCache) Subscribe(fn func(*domain.Wishlist)) (unsubscribe func()) {
	return w.store.subscribe(fn)
}

func (w *WishlistCache) Reset() {
	w.epoch.Add(1)
	w.store.reset()
}

func cloneWishlist(w *domain.Wishlist) *domain.Wishlist {
	if w == nil {
		return &domain.Wishlist{Items: []domain.WishlistItem{}}
	}
	return w.Clone()
}
