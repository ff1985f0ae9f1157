package service

import (
	"context"
	"sync"
	"testing"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/server/cache"
	"github.com/fjod/go_cart/cartsync/internal/server/catalog"
	"github.com/fjod/go_cart/cartsync/internal/server/repository"
)

type mockCache[T any] struct {
	m       sync.RWMutex
	entries map[string]*T
	err     error
	deletes int
}

func newMockCache[T any]() *mockCache[T] {
	return &mockCache[T]{entries: map[string]*T{}}
}

func (m *mockCache[T]) Get(_ context.Context, owner string) (*T, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.entries[owner]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache[T]) Set(_ context.Context, owner string, v *T) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.entries[owner] = v
	return nil
}

func (m *mockCache[T]) Delete(_ context.Context, owners ...string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	for _, owner := range owners {
		delete(m.entries, owner)
	}
	return nil
}

func (m *mockCache[T]) has(owner string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.entries[owner]
	return ok
}

// countingCartRepo wraps a real repository and counts or fails reads and adds.
// When failOwner is set addErr only applies to that owner.
type countingCartRepo struct {
	repository.CartRepository

	m         sync.Mutex
	gets      int
	addErr    error
	failOwner string
	getGate   chan struct{}
}

func (r *countingCartRepo) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	r.m.Lock()
	r.gets++
	gate := r.getGate
	r.m.Unlock()
	if gate != nil {
		<-gate
	}
	return r.CartRepository.GetCart(ctx, owner)
}

func (r *countingCartRepo) AddItem(ctx context.Context, owner string, item domain.CartItem) error {
	r.m.Lock()
	err := r.addErr
	if r.failOwner != "" && r.failOwner != owner {
		err = nil
	}
	r.m.Unlock()
	if err != nil {
		return err
	}
	return r.CartRepository.AddItem(ctx, owner, item)
}

func (r *countingCartRepo) getCount() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.gets
}

// racingCartRepo holds every TakeCart caller until all of them have arrived,
// then runs afterTake once the take returns.
type racingCartRepo struct {
	repository.CartRepository

	arrived   sync.WaitGroup
	afterTake func()
}

func newRacingCartRepo(repo repository.CartRepository, callers int) *racingCartRepo {
	r := &racingCartRepo{CartRepository: repo}
	r.arrived.Add(callers)
	return r
}

func (r *racingCartRepo) TakeCart(ctx context.Context, owner string) (*domain.Cart, error) {
	r.arrived.Done()
	r.arrived.Wait()
	cart, err := r.CartRepository.TakeCart(ctx, owner)
	if r.afterTake != nil {
		r.afterTake()
	}
	return cart, err
}

type racingWishlistRepo struct {
	repository.WishlistRepository

	arrived sync.WaitGroup
}

func newRacingWishlistRepo(repo repository.WishlistRepository, callers int) *racingWishlistRepo {
	r := &racingWishlistRepo{WishlistRepository: repo}
	r.arrived.Add(callers)
	return r
}

func (r *racingWishlistRepo) TakeWishlist(ctx context.Context, owner string) (*domain.Wishlist, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.WishlistRepository.TakeWishlist(ctx, owner)
}

type fixture struct {
	store         *repository.MemoryStore
	carts         *countingCartRepo
	cartCache     *mockCache[domain.Cart]
	wishlistCache *mockCache[domain.Wishlist]
	cartSvc       *CartService
	wishlistSvc   *WishlistService
}

func newFixture(t *testing.T) *fixture {
	store := repository.NewMemoryStore()
	t.Cleanup(store.Close)

	cat := testCatalog()
	f := &fixture{
		store:         store,
		carts:         &countingCartRepo{CartRepository: store.Carts},
		cartCache:     newMockCache[domain.Cart](),
		wishlistCache: newMockCache[domain.Wishlist](),
	}
	f.cartSvc = NewCartService(f.carts, f.cartCache, cat, nil)
	f.wishlistSvc = NewWishlistService(store.Wishlists, f.wishlistCache, cat, nil)
	return f
}

func testCatalog() catalog.Catalog {
	return catalog.NewMemory(
		domain.ProductSummary{ID: 1, Name: "A", Price: 2.5},
		domain.ProductSummary{ID: 2, Name: "B", Price: 10},
		domain.ProductSummary{ID: 3, Name: "C", Price: 1},
	)
}
