package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

var errOffline = errors.New("dial tcp: connection refused")

func networkErr(op string) error {
	return &remote.NetworkError{Op: op, Err: errOffline}
}

// mockBackend behaves like the storefront API: adds sum quantities, removal is
// idempotent, every read returns a fresh copy.
type mockBackend struct {
	m sync.RWMutex

	cart     map[int64]int
	order    []int64
	wishlist map[int64]time.Time
	prices   map[int64]float64

	getCartErr     error
	addErr         error
	updateErr      error
	getWishlistErr error
	addWishErr     error
	checkErr       error

	getCartCalls int
	checkCalls   int

	// getCartHook runs after the cart has been read and before it is returned,
	// so a test can hold a refresh open while other calls go through.
	getCartHook func(call int)
	checkHook   func()
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		cart:     map[int64]int{},
		wishlist: map[int64]time.Time{},
		prices:   map[int64]float64{},
	}
}

func (m *mockBackend) seedCart(productID int64, qty int) {
	m.m.Lock()
	defer m.m.Unlock()
	m.track(productID)
	m.cart[productID] = qty
}

func (m *mockBackend) track(productID int64) {
	for _, id := range m.order {
		if id == productID {
			return
		}
	}
	m.order = append(m.order, productID)
}

func (m *mockBackend) setErr(target *error, err error) {
	m.m.Lock()
	defer m.m.Unlock()
	*target = err
}

func (m *mockBackend) GetCart(context.Context) (*domain.Cart, error) {
	m.m.Lock()
	m.getCartCalls++
	call := m.getCartCalls
	if m.getCartErr != nil {
		err := m.getCartErr
		m.m.Unlock()
		return nil, err
	}
	cart := &domain.Cart{Items: []domain.CartItem{}}
	for _, id := range m.order {
		qty, ok := m.cart[id]
		if !ok {
			continue
		}
		price := m.prices[id]
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:       id,
			Quantity:        qty,
			ProductSnapshot: domain.ProductSummary{ID: id, Price: price},
		})
	}
	cart.Total = cart.ComputeTotal()
	hook := m.getCartHook
	m.m.Unlock()

	if hook != nil {
		hook(call)
	}
	return cart, nil
}

func (m *mockBackend) AddToCart(_ context.Context, productID int64, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.track(productID)
	m.cart[productID] += quantity
	return nil
}

func (m *mockBackend) UpdateCartItem(_ context.Context, productID int64, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.cart[productID]; !ok {
		return &remote.ValidationError{Op: "update cart item", Status: 404, Code: "not_found", Message: "item not found in cart"}
	}
	m.cart[productID] = quantity
	return nil
}

func (m *mockBackend) RemoveCartItem(_ context.Context, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.cart, productID)
	return nil
}

func (m *mockBackend) ClearCart(context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = map[int64]int{}
	m.order = nil
	return nil
}

func (m *mockBackend) GetWishlist(context.Context) (*domain.Wishlist, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.getWishlistErr != nil {
		return nil, m.getWishlistErr
	}
	w := &domain.Wishlist{Items: []domain.WishlistItem{}}
	for id, at := range m.wishlist {
		w.Items = append(w.Items, domain.WishlistItem{ProductID: id, AddedAt: at})
	}
	w.SortByAddedAt()
	return w, nil
}

func (m *mockBackend) AddToWishlist(_ context.Context, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.addWishErr != nil {
		return m.addWishErr
	}
	if _, ok := m.wishlist[productID]; !ok {
		m.wishlist[productID] = time.Now()
	}
	return nil
}

func (m *mockBackend) RemoveFromWishlist(_ context.Context, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.wishlist, productID)
	return nil
}

func (m *mockBackend) CheckWishlist(ctx context.Context, productID int64) (bool, error) {
	m.m.Lock()
	m.checkCalls++
	hook := m.checkHook
	err := m.checkErr
	_, in := m.wishlist[productID]
	m.m.Unlock()

	if hook != nil {
		hook()
	}
	if err == nil {
		err = ctx.Err()
	}
	return in, err
}

func (m *mockBackend) calls() (getCart, check int) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.getCartCalls, m.checkCalls
}
