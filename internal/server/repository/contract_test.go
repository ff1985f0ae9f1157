package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// testCartRepository runs the behaviour every CartRepository must share.
func testCartRepository(t *testing.T, newRepo func(t *testing.T) CartRepository) {
	t.Run("GetCart_NotFound", func(t *testing.T) {
		repo := newRepo(t)
		cart, err := repo.GetCart(context.Background(), "user:nonexistent")
		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("AddItem_NewCart", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		item := domain.CartItem{
			ProductID:       1,
			Quantity:        3,
			ProductSnapshot: domain.ProductSummary{ID: 1, Name: "Mug", Price: 4.5},
		}
		require.NoError(t, repo.AddItem(ctx, owner, item))

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, owner, cart.Owner)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(1), cart.Items[0].ProductID)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.Equal(t, "Mug", cart.Items[0].ProductSnapshot.Name)
		assert.False(t, cart.CreatedAt.IsZero())
	})

	t.Run("AddItem_ExistingItem_SumsQuantity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")

		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 5}))

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 7, cart.Items[0].Quantity)
	})

	t.Run("AddItem_CapsQuantity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")

		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 60}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 60}))

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxItemQuantity, cart.Items[0].Quantity)
	})

	t.Run("AddItem_ConcurrentSameProduct", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")
		snapshot := domain.ProductSummary{ID: 7, Name: "Mug", Price: 4.5}

		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.AddItem(ctx, owner, domain.CartItem{ProductID: 7, Quantity: 1, ProductSnapshot: snapshot})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1, "one line per product")
		assert.Equal(t, writers, cart.Items[0].Quantity)
		assert.Equal(t, "Mug", cart.Items[0].ProductSnapshot.Name)
	})

	t.Run("AddItem_ConcurrentStaysCapped", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 2, Quantity: 1}))

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 2, Quantity: 15}))
			}()
		}
		wg.Wait()

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, domain.MaxItemQuantity, cart.Items[0].Quantity)
	})

	t.Run("TakeCart", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 3, Quantity: 1}))

		var wg sync.WaitGroup
		var m sync.Mutex
		var taken []*domain.Cart
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cart, err := repo.TakeCart(ctx, owner)
				if err != nil {
					assert.ErrorIs(t, err, ErrCartNotFound)
					return
				}
				m.Lock()
				taken = append(taken, cart)
				m.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, taken, 1, "only one caller takes the cart")
		assert.Equal(t, owner, taken[0].Owner)
		assert.Len(t, taken[0].Items, 2)
		_, err := repo.GetCart(ctx, owner)
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("UpdateItemQuantity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))

		require.NoError(t, repo.UpdateItemQuantity(ctx, owner, 1, 10))

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, 10, cart.Items[0].Quantity)

		assert.ErrorIs(t, repo.UpdateItemQuantity(ctx, owner, 2, 1), ErrItemNotFound)
		assert.ErrorIs(t, repo.UpdateItemQuantity(ctx, "user:other", 1, 1), ErrItemNotFound)
	})

	t.Run("RemoveItem", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 2, Quantity: 3}))

		require.NoError(t, repo.RemoveItem(ctx, owner, 1))
		require.NoError(t, repo.RemoveItem(ctx, owner, 1), "removing a missing item succeeds")

		cart, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(2), cart.Items[0].ProductID)

		assert.ErrorIs(t, repo.RemoveItem(ctx, "user:other", 1), ErrCartNotFound)
	})

	t.Run("DeleteCart", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))

		require.NoError(t, repo.DeleteCart(ctx, owner))

		_, err := repo.GetCart(ctx, owner)
		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.ErrorIs(t, repo.DeleteCart(ctx, owner), ErrCartNotFound)
	})

	t.Run("UpsertCart", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.CartItem{ProductID: 1, Quantity: 2}))

		cart := &domain.Cart{
			Owner: owner,
			Items: []domain.CartItem{{ProductID: 3, Quantity: 4}, {ProductID: 4, Quantity: 1}},
		}
		require.NoError(t, repo.UpsertCart(ctx, cart))

		got, err := repo.GetCart(ctx, owner)
		require.NoError(t, err)
		require.Len(t, got.Items, 2)
		assert.Equal(t, int64(3), got.Items[0].ProductID)
		assert.Equal(t, 4, got.Items[0].Quantity)
	})
}

func testWishlistRepository(t *testing.T, newRepo func(t *testing.T) WishlistRepository) {
	t.Run("GetWishlist_NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetWishlist(context.Background(), "user:nobody")
		assert.ErrorIs(t, err, ErrWishlistNotFound)
	})

	t.Run("AddItem_KeepsFirstAddedAt", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 7, AddedAt: first}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 7, AddedAt: first.Add(time.Hour)}))

		w, err := repo.GetWishlist(ctx, owner)
		require.NoError(t, err)
		require.Len(t, w.Items, 1)
		assert.True(t, first.Equal(w.Items[0].AddedAt))
	})

	t.Run("GetWishlist_NewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 1, AddedAt: base}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 2, AddedAt: base.Add(2 * time.Hour)}))
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 3, AddedAt: base.Add(time.Hour)}))

		w, err := repo.GetWishlist(ctx, owner)
		require.NoError(t, err)
		require.Len(t, w.Items, 3)
		assert.Equal(t, int64(2), w.Items[0].ProductID)
		assert.Equal(t, int64(3), w.Items[1].ProductID)
		assert.Equal(t, int64(1), w.Items[2].ProductID)
	})

	t.Run("AddItem_ConcurrentSameProduct", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 7}))
			}()
		}
		wg.Wait()

		w, err := repo.GetWishlist(ctx, owner)
		require.NoError(t, err)
		require.Len(t, w.Items, 1)
		assert.Equal(t, int64(7), w.Items[0].ProductID)
	})

	t.Run("TakeWishlist", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 4}))

		w, err := repo.TakeWishlist(ctx, owner)
		require.NoError(t, err)
		require.Len(t, w.Items, 1)
		assert.Equal(t, int64(4), w.Items[0].ProductID)

		_, err = repo.TakeWishlist(ctx, owner)
		assert.ErrorIs(t, err, ErrWishlistNotFound)
		_, err = repo.GetWishlist(ctx, owner)
		assert.ErrorIs(t, err, ErrWishlistNotFound)
	})

	t.Run("RemoveItem", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.UserOwner("user123")
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 1}))

		require.NoError(t, repo.RemoveItem(ctx, owner, 1))
		require.NoError(t, repo.RemoveItem(ctx, owner, 1))

		w, err := repo.GetWishlist(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, w.Items)
		assert.ErrorIs(t, repo.RemoveItem(ctx, "user:other", 1), ErrWishlistNotFound)
	})

	t.Run("DeleteAndUpsert", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		owner := domain.SessionOwner("s1")
		require.NoError(t, repo.AddItem(ctx, owner, domain.WishlistItem{ProductID: 1}))

		require.NoError(t, repo.DeleteWishlist(ctx, owner))
		assert.ErrorIs(t, repo.DeleteWishlist(ctx, owner), ErrWishlistNotFound)

		require.NoError(t, repo.UpsertWishlist(ctx, &domain.Wishlist{
			Owner: owner,
			Items: []domain.WishlistItem{{ProductID: 5, AddedAt: time.Now()}},
		}))
		w, err := repo.GetWishlist(ctx, owner)
		require.NoError(t, err)
		require.Len(t, w.Items, 1)
		assert.Equal(t, int64(5), w.Items[0].ProductID)
	})
}
