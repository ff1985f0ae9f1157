// Package cache holds the last known-good cart and wishlist snapshots on the
// client. Every mutation goes to the backend first and ends with a full refetch;
// snapshots are replaced wholesale, never patched.
package cache

import (
	"context"
	"log/slog"

	"github.com/fjod/go_cart/cartsync/internal/aggregate"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

type CartRemote interface {
	GetCart(ctx context.Context) (*domain.Cart, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	UpdateCartItem(ctx context.Context, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, productID int64) error
	ClearCart(ctx context.Context) error
}

type CartCache struct {
	remote CartRemote
	store  *store[domain.Cart]
	count  *aggregate.Memo[domain.Cart, int]
	log    *slog.Logger
}

func NewCartCache(r CartRemote, opts ...Option) *CartCache {
	o := buildOptions(opts)
	return &CartCache{
		remote: r,
		store:  newStore(cloneCart, o.now),
		count:  aggregate.NewMemo(aggregate.CartItemCount),
		log:    o.log.With("component", "cart_cache"),
	}
}

// GetCart fetches the cart and replaces the snapshot. On a transient failure the
// previous snapshot stays in place; when the backend rejects the identity the
// snapshot is reset to empty.
func (c *CartCache) GetCart(ctx context.Context) (*domain.Cart, error) {
	cart, err := c.remote.GetCart(ctx)
	if err != nil {
		if remote.IsUnauthorized(err) {
			c.log.WarnContext(ctx, "identity rejected, resetting cart", "error", err)
			c.store.reset()
		} else {
			c.log.WarnContext(ctx, "cart refresh failed, keeping last snapshot", "error", err)
		}
		return nil, err
	}

	c.store.replace(cart)
	c.log.DebugContext(ctx, "cart replaced", "lines", len(cart.Items), "total", cart.Total)
	return cart.Clone(), nil
}

func (c *CartCache) AddToCart(ctx context.Context, productID int64, quantity int) error {
	const op = "add to cart"
	if err := remote.ValidateProductID(op, productID); err != nil {
		return err
	}
	if err := remote.ValidateQuantity(op, quantity); err != nil {
		return err
	}
	if err := c.remote.AddToCart(ctx, productID, quantity); err != nil {
		return err
	}
	return c.refreshAfterWrite(ctx, op)
}

// UpdateItem sets the quantity of a line; removal goes through RemoveItem.
func (c *CartCache) UpdateItem(ctx context.Context, productID int64, quantity int) error {
	const op = "update cart item"
	if err := remote.ValidateProductID(op, productID); err != nil {
		return err
	}
	if err := remote.ValidateQuantity(op, quantity); err != nil {
		return err
	}
	if err := c.remote.UpdateCartItem(ctx, productID, quantity); err != nil {
		return err
	}
	return c.refreshAfterWrite(ctx, op)
}

// RemoveItem is idempotent: removing a product that is not in the cart succeeds.
func (c *CartCache) RemoveItem(ctx context.Context, productID int64) error {
	const op = "remove cart item"
	if err := remote.ValidateProductID(op, productID); err != nil {
		return err
	}
	if err := c.remote.RemoveCartItem(ctx, productID); err != nil {
		return err
	}
	return c.refreshAfterWrite(ctx, op)
}

func (c *CartCache) ClearCart(ctx context.Context) error {
	const op = "clear cart"
	if err := c.remote.ClearCart(ctx); err != nil {
		return err
	}
	return c.refreshAfterWrite(ctx, op)
}

func (c *CartCache) refreshAfterWrite(ctx context.Context, op string) error {
	if _, err := c.GetCart(ctx); err != nil {
		return &RefreshError{Op: op, Err: err}
	}
	return nil
}

// Snapshot returns a copy of the current cart; an empty cart when nothing is loaded.
func (c *CartCache) Snapshot() *domain.Cart {
	snap, _ := c.store.get()
	return cloneCart(snap)
}

func (c *CartCache) Loaded() bool {
	snap, _ := c.store.get()
	return snap != nil
}

func (c *CartCache) ItemCount() int {
	snap, _ := c.store.get()
	return c.count.Get(snap)
}

// Total is the backend-computed total of the current snapshot.
func (c *CartCache) Total() float64 {
	snap, _ := c.store.get()
	if snap == nil {
		return 0
	}
	return snap.Total
}

func (c *CartCache) Find(productID int64) (domain.CartItem, bool) {
	snap, _ := c.store.get()
	return snap.Find(productID)
}

// Subscribe calls fn with a copy of every new snapshot. fn must not call back into
// the cache's mutating methods synchronously.
func (c *CartCache) Subscribe(fn func(*domain.Cart)) (unsubscribe func()) {
	return c.store.subscribe(fn)
}

// Reset drops the snapshot, e.g. on logout.
func (c *CartCache) Reset() {
	c.store.reset()
}

func cloneCart(c *domain.Cart) *domain.Cart {
	if c == nil {
		return &domain.Cart{Items: []domain.CartItem{}}
	}
	return c.Clone()
}
