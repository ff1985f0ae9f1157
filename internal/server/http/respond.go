package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/server/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps service errors onto HTTP status codes.
func handleServiceError(w http.ResponseWriter, log *slog.Logger, r *http.Request, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		httpStatus, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, service.ErrInvalidProductID):
		httpStatus, code = http.StatusBadRequest, "invalid_product_id"
	case errors.Is(err, service.ErrProductNotFound):
		httpStatus, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, service.ErrItemNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", getRequestID(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}

// requireOwner resolves the owner key for the caller or writes a 401.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := getCaller(r.Context())
	switch {
	case caller.UserID != "":
		return domain.UserOwner(caller.UserID), true
	case caller.SessionToken != "":
		return domain.SessionOwner(caller.SessionToken), true
	default:
		respondError(w, http.StatusUnauthorized, "unauthorized", "session token or bearer token is required")
		return "", false
	}
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be a positive integer")
		return 0, false
	}
	return productID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
