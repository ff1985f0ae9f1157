package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/go_cart/cartsync/internal/logger"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

// NewRouter wires the storefront REST API.
func NewRouter(carts CartService, wishlists WishlistService, verifier TokenVerifier, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1MB
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	cartHandler := NewCartHandler(carts, cfg.RequestTimeout, cfg.Logger)
	wishlistHandler := NewWishlistHandler(wishlists, cfg.RequestTimeout, cfg.Logger)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLogMiddleware(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(MaxBodyMiddleware(cfg.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(verifier))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/", cartHandler.AddItem)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/migrate", cartHandler.Migrate)
			r.Put("/{productId}", cartHandler.UpdateQuantity)
			r.Delete("/{productId}", cartHandler.RemoveItem)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", wishlistHandler.GetWishlist)
			r.Post("/", wishlistHandler.AddItem)
			r.Post("/migrate", wishlistHandler.Migrate)
			r.Delete("/{productId}", wishlistHandler.RemoveItem)
			r.Get("/{productId}/check", wishlistHandler.Check)
		})
	})

	return r
}
