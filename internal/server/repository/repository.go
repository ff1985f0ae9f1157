// Package repository persists carts and wishlists keyed by owner (see
// domain.SessionOwner and domain.UserOwner).
package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrWishlistNotFound = errors.New("wishlist not found")
)

// CartRepository defines the interface for cart data operations.
// AddItem sums quantities for a product already in the cart, capped at
// domain.MaxItemQuantity, and is safe under concurrent calls for one owner.
// TakeCart deletes the cart and returns it; only one caller can take it.
type CartRepository interface {
	GetCart(ctx context.Context, owner string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	AddItem(ctx context.Context, owner string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, owner string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, owner string, productID int64) error
	DeleteCart(ctx context.Context, owner string) error
	TakeCart(ctx context.Context, owner string) (*domain.Cart, error)
}

// WishlistRepository stores one wishlist per owner. AddItem keeps the original
// AddedAt when the product is already present.
type WishlistRepository interface {
	GetWishlist(ctx context.Context, owner string) (*domain.Wishlist, error)
	UpsertWishlist(ctx context.Context, wishlist *domain.Wishlist) error
	AddItem(ctx context.Context, owner string, item domain.WishlistItem) error
	RemoveItem(ctx context.Context, owner string, productID int64) error
	DeleteWishlist(ctx context.Context, owner string) error
	TakeWishlist(ctx context.Context, owner string) (*domain.Wishlist, error)
}

func capQuantity(q int) int {
	if q > domain.MaxItemQuantity {
		return domain.MaxItemQuantity
	}
	return q
}
