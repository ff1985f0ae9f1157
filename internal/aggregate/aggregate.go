// Package aggregate derives counts from cart and wishlist snapshots. Nothing here
// is ever stored next to the snapshot; values are recomputed or memoized on the
// snapshot pointer, which changes on every wholesale replacement.
package aggregate

import (
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// CartItemCount is Σ quantity over the cart items.
func CartItemCount(cart *domain.Cart) int {
	if cart == nil {
		return 0
	}
	n := 0
	for _, item := range cart.Items {
		n += item.Quantity
	}
	return n
}

// CartLineCount is the number of distinct products in the cart.
func CartLineCount(cart *domain.Cart) int {
	if cart == nil {
		return 0
	}
	return len(cart.Items)
}

// WishlistItemCount is |items|.
func WishlistItemCount(w *domain.Wishlist) int {
	if w == nil {
		return 0
	}
	return len(w.Items)
}

// Memo caches fn(snapshot) for the most recent snapshot pointer only.
type Memo[S any, V any] struct {
	fn func(*S) V

	mu    sync.Mutex
	key   *S
	value V
	valid bool
}

func NewMemo[S any, V any](fn func(*S) V) *Memo[S, V] {
	return &Memo[S, V]{fn: fn}
}

func (m *Memo[S, V]) Get(snapshot *S) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.key == snapshot {
		return m.value
	}
	m.key = snapshot
	m.value = m.fn(snapshot)
	m.valid = true
	return m.value
}
