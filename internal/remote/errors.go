package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidProductID = errors.New("product id must be positive")
	ErrMalformed        = errors.New("malformed response")
)

// NetworkError means the request never got a response: offline, DNS, timeout,
// cancelled context.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a 5xx or a response body that could not be understood.
type ServerError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server error (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server error (status %d): %s", e.Op, e.Status, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Err }

// ValidationError is input the backend (or the client, before sending) refused.
// It is never retried.
type ValidationError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: rejected: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: rejected (%s): %s", e.Op, e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransient reports whether err leaves the cache stale-but-available and can be
// retried by an explicit user action.
func IsTransient(err error) bool {
	var netErr *NetworkError
	var srvErr *ServerError
	return errors.As(err, &netErr) || errors.As(err, &srvErr)
}

// IsUnauthorized reports whether the backend no longer accepts the caller's
// identity.
func IsUnauthorized(err error) bool {
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		return false
	}
	return vErr.Status == http.StatusUnauthorized || vErr.Status == http.StatusForbidden
}

// ValidateQuantity rejects quantities below one before any request is made.
func ValidateQuantity(op string, quantity int) error {
	if quantity < 1 {
		return &ValidationError{
			Op:      op,
			Code:    "invalid_quantity",
			Message: fmt.Sprintf("quantity %d must be at least 1", quantity),
			Err:     ErrInvalidQuantity,
		}
	}
	return nil
}

func ValidateProductID(op string, productID int64) error {
	if productID <= 0 {
		return &ValidationError{
			Op:      op,
			Code:    "invalid_product_id",
			Message: fmt.Sprintf("product id %d must be positive", productID),
			Err:     ErrInvalidProductID,
		}
	}
	return nil
}
