package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

type CartService interface {
	GetCart(ctx context.Context, owner string) (*domain.Cart, error)
	AddItem(ctx context.Context, owner string, productID int64, quantity int) error
	UpdateQuantity(ctx context.Context, owner string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, owner string, productID int64) error
	ClearCart(ctx context.Context, owner string) error
	Merge(ctx context.Context, from, into string) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, log *slog.Logger) *CartHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}
	if req.Quantity <= 0 || req.Quantity > domain.MaxItemQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.carts.AddItem(ctx, owner, req.ProductID, req.Quantity); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateQuantityRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 || req.Quantity > domain.MaxItemQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	if err := h.carts.UpdateQuantity(ctx, owner, productID, req.Quantity); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
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

	if err := h.carts.RemoveItem(ctx, owner, productID); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, owner); err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

// Migrate merges the caller's session cart into the account cart. It needs a
// bearer token; without a session token there is nothing to merge.
func (h *CartHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	caller := getCaller(r.Context())
	if caller.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "migrate requires a bearer token")
		return
	}
	into := domain.UserOwner(caller.UserID)
	if caller.SessionToken != "" {
		if err := h.carts.Merge(ctx, domain.SessionOwner(caller.SessionToken), into); err != nil {
			handleServiceError(w, h.log, r, err)
			return
		}
	}
	h.respondCart(ctx, w, r, into, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, owner string, status int) {
	cart, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		handleServiceError(w, h.log, r, err)
		return
	}
	respondJSON(w, status, cart)
}
