// Package remote issues the cart and wishlist REST calls and maps every failure
// onto NetworkError, ServerError or ValidationError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/identity"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

const (
	HeaderSessionToken = "X-Session-Token"

	maxResponseBytes = 1 << 20 // 1MB

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 10 * time.Second
)

// errServerStatus marks a 5xx so the breaker counts it as a failure.
var errServerStatus = errors.New("server error status")

// CredentialsFunc returns the identity whose credentials decorate each request.
type CredentialsFunc func() identity.Identity

type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialsFunc
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker[response]

	breakerThreshold uint32
	breakerCooldown  time.Duration
}

type response struct {
	status int
	data   []byte
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithBreaker opens the circuit after threshold consecutive transport failures
// or 5xx responses; while open, calls fail fast with a NetworkError until
// cooldown has passed.
func WithBreaker(threshold uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		c.breakerThreshold = threshold
		c.breakerCooldown = cooldown
	}
}

func NewClient(baseURL string, creds CredentialsFunc, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds:            creds,
		log:              logger.Nop(),
		breakerThreshold: defaultBreakerThreshold,
		breakerCooldown:  defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := c.breakerThreshold
	c.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "storefront",
		MaxRequests: 1,
		Timeout:     c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

type addCartItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type addWishlistItemRequest struct {
	ProductID int64 `json:"productId"`
}

type membershipResponse struct {
	InWishlist bool `json:"inWishlist"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (c *Client) GetCart(ctx context.Context) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.do(ctx, "get cart", http.MethodGet, "/cart", nil, &cart); err != nil {
		return nil, err
	}
	if err := normalizeCart(&cart); err != nil {
		return nil, &ServerError{Op: "get cart", Status: http.StatusOK, Message: err.Error(), Err: ErrMalformed}
	}
	return &cart, nil
}

func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	body := addCartItemRequest{ProductID: productID, Quantity: quantity}
	return c.do(ctx, "add to cart", http.MethodPost, "/cart", body, nil)
}

func (c *Client) UpdateCartItem(ctx context.Context, productID int64, quantity int) error {
	body := updateQuantityRequest{Quantity: quantity}
	return c.do(ctx, "update cart item", http.MethodPut, "/cart/"+formatID(productID), body, nil)
}

func (c *Client) RemoveCartItem(ctx context.Context, productID int64) error {
	return c.do(ctx, "remove cart item", http.MethodDelete, "/cart/"+formatID(productID), nil, nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, "clear cart", http.MethodDelete, "/cart", nil, nil)
}

func (c *Client) MigrateCart(ctx context.Context) error {
	return c.do(ctx, "migrate cart", http.MethodPost, "/cart/migrate", nil, nil)
}

func (c *Client) GetWishlist(ctx context.Context) (*domain.Wishlist, error) {
	var wishlist domain.Wishlist
	if err := c.do(ctx, "get wishlist", http.MethodGet, "/wishlist", nil, &wishlist); err != nil {
		return nil, err
	}
	if err := normalizeWishlist(&wishlist); err != nil {
		return nil, &ServerError{Op: "get wishlist", Status: http.StatusOK, Message: err.Error(), Err: ErrMalformed}
	}
	return &wishlist, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID int64) error {
	body := addWishlistItemRequest{ProductID: productID}
	return c.do(ctx, "add to wishlist", http.MethodPost, "/wishlist", body, nil)
}

func (c *Client) RemoveFromWishlist(ctx context.Context, productID int64) error {
	return c.do(ctx, "remove from wishlist", http.MethodDelete, "/wishlist/"+formatID(productID), nil, nil)
}

func (c *Client) CheckWishlist(ctx context.Context, productID int64) (bool, error) {
	var resp membershipResponse
	path := "/wishlist/" + formatID(productID) + "/check"
	if err := c.do(ctx, "check wishlist", http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.InWishlist, nil
}

func (c *Client) MigrateWishlist(ctx context.Context) error {
	return c.do(ctx, "migrate wishlist", http.MethodPost, "/wishlist/migrate", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(req)

	start := time.Now()
	resp, err := c.breaker.Execute(func() (response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return response{}, err
		}
		defer r.Body.Close()

		data, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
		if err != nil {
			return response{}, fmt.Errorf("read response: %w", err)
		}
		res := response{status: r.StatusCode, data: data}
		if r.StatusCode >= 500 {
			return res, errServerStatus
		}
		return res, nil
	})
	if err != nil && !errors.Is(err, errServerStatus) {
		c.log.WarnContext(ctx, "request failed", "op", op, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	c.log.DebugContext(ctx, "request completed",
		"op", op, "status", resp.status, "duration", time.Since(start))

	data := resp.data
	switch {
	case resp.status >= 200 && resp.status < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &ServerError{Op: op, Status: resp.status, Message: "malformed response", Err: errors.Join(ErrMalformed, err)}
		}
		return nil
	case resp.status >= 400 && resp.status < 500:
		e := decodeError(data)
		return &ValidationError{Op: op, Status: resp.status, Code: e.Code, Message: e.Error}
	default:
		e := decodeError(data)
		return &ServerError{Op: op, Status: resp.status, Message: e.Error}
	}
}

func (c *Client) decorate(req *http.Request) {
	if c.creds == nil {
		return
	}
	id := c.creds()
	if id.SessionToken != "" {
		req.Header.Set(HeaderSessionToken, id.SessionToken)
	}
	if id.IsAuthenticated() && id.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+id.AccessToken)
	}
}

func decodeError(data []byte) errorResponse {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	return e
}

// normalizeCart enforces the invariants the caches rely on: an empty cart has a
// non-nil item list, product ids are unique and every quantity is positive.
func normalizeCart(cart *domain.Cart) error {
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	seen := make(map[int64]struct{}, len(cart.Items))
	for _, item := range cart.Items {
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("duplicate cart item for product %d", item.ProductID)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("cart item for product %d has quantity %d", item.ProductID, item.Quantity)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func normalizeWishlist(w *domain.Wishlist) error {
	if w.Items == nil {
		w.Items = []domain.WishlistItem{}
	}
	seen := make(map[int64]struct{}, len(w.Items))
	for _, item := range w.Items {
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("duplicate wishlist item for product %d", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	w.SortByAddedAt()
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
