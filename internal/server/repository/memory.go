package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// CleanupInterval is how often the memory store drops abandoned carts and wishlists.
const CleanupInterval = time.Hour

// MemoryStore keeps carts and wishlists in process. Abandoned documents expire
// the same way the Mongo TTL index expires them.
type MemoryStore struct {
	Carts     *MemoryCartRepository
	Wishlists *MemoryWishlistRepository

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		Carts:       &MemoryCartRepository{carts: make(map[string]*domain.Cart), now: time.Now},
		Wishlists:   &MemoryWishlistRepository{wishlists: make(map[string]*domain.Wishlist), now: time.Now},
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ExpireAbandoned(time.Now().Add(-abandonedAfter))
		case <-s.stopCleanup:
			return
		}
	}
}

// ExpireAbandoned drops everything last updated before cutoff.
func (s *MemoryStore) ExpireAbandoned(cutoff time.Time) {
	s.Carts.mu.Lock()
	for owner, cart := range s.Carts.carts {
		if cart.UpdatedAt.Before(cutoff) {
			delete(s.Carts.carts, owner)
		}
	}
	s.Carts.mu.Unlock()

	s.Wishlists.mu.Lock()
	for owner, w := range s.Wishlists.wishlists {
		if w.UpdatedAt.Before(cutoff) {
			delete(s.Wishlists.wishlists, owner)
		}
	}
	s.Wishlists.mu.Unlock()
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	s.wg.Wait()
}

type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
	now   func() time.Time
}

func (r *MemoryCartRepository) GetCart(_ context.Context, owner string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cart, ok := r.carts[owner]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryCartRepository) UpsertCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	stored := cart.Clone()
	if stored.Items == nil {
		stored.Items = []domain.CartItem{}
	}
	r.carts[cart.Owner] = stored
	return nil
}

func (r *MemoryCartRepository) AddItem(_ context.Context, owner string, item domain.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	item.AddedAt = now
	item.Quantity = capQuantity(item.Quantity)

	cart, ok := r.carts[owner]
	if !ok {
		r.carts[owner] = &domain.Cart{
			Owner:     owner,
			Items:     []domain.CartItem{item},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	}

	next := domain.MergeCarts(cart, &domain.Cart{Items: []domain.CartItem{item}})
	next.UpdatedAt = now
	r.carts[owner] = next
	return nil
}

func (r *MemoryCartRepository) UpdateItemQuantity(_ context.Context, owner string, productID int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[owner]
	if !ok {
		return ErrItemNotFound
	}
	next := cart.Clone()
	for i := range next.Items {
		if next.Items[i].ProductID == productID {
			next.Items[i].Quantity = capQuantity(quantity)
			next.UpdatedAt = r.now()
			r.carts[owner] = next
			return nil
		}
	}
	return ErrItemNotFound
}

func (r *MemoryCartRepository) RemoveItem(_ context.Context, owner string, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[owner]
	if !ok {
		return ErrCartNotFound
	}
	next := cart.Clone()
	next.Items = next.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			next.Items = append(next.Items, item)
		}
	}
	next.UpdatedAt = r.now()
	r.carts[owner] = next
	return nil
}

func (r *MemoryCartRepository) DeleteCart(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[owner]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, owner)
	return nil
}

func (r *MemoryCartRepository) TakeCart(_ context.Context, owner string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[owner]
	if !ok {
		return nil, ErrCartNotFound
	}
	delete(r.carts, owner)
	return cart, nil
}

type MemoryWishlistRepository struct {
	mu        sync.RWMutex
	wishlists map[string]*domain.Wishlist
	now       func() time.Time
}

func (r *MemoryWishlistRepository) GetWishlist(_ context.Context, owner string) (*domain.Wishlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wishlists[owner]
	if !ok {
		return nil, ErrWishlistNotFound
	}
	out := w.Clone()
	out.SortByAddedAt()
	return out, nil
}

func (r *MemoryWishlistRepository) UpsertWishlist(_ context.Context, wishlist *domain.Wishlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wishlist.UpdatedAt = r.now()
	stored := wishlist.Clone()
	if stored.Items == nil {
		stored.Items = []domain.WishlistItem{}
	}
	r.wishlists[wishlist.Owner] = stored
	return nil
}

func (r *MemoryWishlistRepository) AddItem(_ context.Context, owner string, item domain.WishlistItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}

	w, ok := r.wishlists[owner]
	if !ok {
		r.wishlists[owner] = &domain.Wishlist{
			Owner:     owner,
			Items:     []domain.WishlistItem{item},
			UpdatedAt: now,
		}
		return nil
	}
	if w.Contains(item.ProductID) {
		return nil
	}
	next := domain.MergeWishlists(w, &domain.Wishlist{Items: []domain.WishlistItem{item}})
	next.UpdatedAt = now
	r.wishlists[owner] = next
	return nil
}

func (r *MemoryWishlistRepository) RemoveItem(_ context.Context, owner string, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wishlists[owner]
	if !ok {
		return ErrWishlistNotFound
	}
	next := w.Clone()
	next.Items = next.Items[:0]
	for _, item := range w.Items {
		if item.ProductID != productID {
			next.Items = append(next.Items, item)
		}
	}
	next.UpdatedAt = r.now()
	r.wishlists[owner] = next
	return nil
}

func (r *MemoryWishlistRepository) DeleteWishlist(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wishlists[owner]; !ok {
		return ErrWishlistNotFound
	}
	delete(r.wishlists, owner)
	return nil
}

func (r *MemoryWishlistRepository) TakeWishlist(_ context.Context, owner string) (*domain.Wishlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wishlists[owner]
	if !ok {
		return nil, ErrWishlistNotFound
	}
	delete(r.wishlists, owner)
	return w, nil
}
