package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

type WishlistService interface {
	GetWishlist(ctx context.Context, owner string) (*domain.Wishlist, error)
	AddItem(ctx context.Context, owner string, productID int64) error
	RemoveItem(ctx context.Context, owner string, productID int64) error
	Contains(ctx context.Context, owner string, productID int64) (bool, error)
	Merge(ctx context.Context, from, into string) error
}

type WishlistHandler struct {
	wishlists WishlistService
	timeout   time.Duration
	log       *slog.Logger
}

func NewWishlistHandler(wishlists WishlistService, timeout time.Duration, log *slog.Logger) *WishlistHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WishlistHandler{
		wishlists: wishlists,
		timeout:   timeout,
		log:       log,
	}
}

type AddWishlistItemRequestDTO struct {
	ProductID int64 `json:"productId"`
}

type MembershipResponseDTO struct {
	InWishlist bool `json:"inWishlist"`
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	h.respondWishlist(ctx, w, r, owner, http.StatusOK)
}

func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req AddWishlistItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}

	if err := h.wishlists.AddItem(ctx, owner, req.ProductID); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondWishlist(ctx, w, r, owner, http.StatusCreated)
}

func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.wishlists.RemoveItem(ctx, owner, productID); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondWishlist(ctx, w, r, owner, http.StatusOK)
}

func (h *WishlistHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	in, err := h.wishlists.Contains(ctx, owner, productID)
	if err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MembershipResponseDTO{InWishlist: in})
}

func (h *WishlistHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller := getCaller(r.Context())
	if caller.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "migrate requires a bearer token")
		return
	}
	into := domain.UserOwner(caller.UserID)
	if caller.SessionToken != "" {
		if err := h.wishlists.Merge(ctx, domain.SessionOwner(caller.SessionToken), into); err != nil {
			handleServiceError(w, h.log, r, err)
			return
		}
	}
	h.respondWishlist(ctx, w, r, into, http.StatusOK)
}

func (h *WishlistHandler) respondWishlist(ctx context.Context, w http.ResponseWriter, r *http.Request, owner string, status int) {
	wishlist, err := h.wishlists.GetWishlist(ctx, owner)
	if err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	respondJSON(w, status, wishlist)
}
