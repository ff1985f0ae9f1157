package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/fjod/go_cart/cartsync/internal/otel"
	"github.com/fjod/go_cart/cartsync/internal/server/auth"
	"github.com/fjod/go_cart/cartsync/internal/server/cache"
	"github.com/fjod/go_cart/cartsync/internal/server/catalog"
	h "github.com/fjod/go_cart/cartsync/internal/server/http"
	"github.com/fjod/go_cart/cartsync/internal/server/poller"
	"github.com/fjod/go_cart/cartsync/internal/server/repository"
	"github.com/fjod/go_cart/cartsync/internal/server/service"
)

func main() {
	var cfg config.Server
	if err := config.ParseEnv(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("storefront-api failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "storefront-api", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Storage
	var (
		carts     repository.CartRepository
		wishlists repository.WishlistRepository
	)
	switch cfg.Storage {
	case "memory":
		store := repository.NewMemoryStore()
		closers = append(closers, store.Close)
		carts, wishlists = store.Carts, store.Wishlists
		log.Info("using in-memory storage")
	case "mongo":
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = db.Client().Disconnect(context.Background()) })

		mongoCarts := repository.NewMongoCartRepository(db)
		mongoWishlists := repository.NewMongoWishlistRepository(db)
		if err := mongoCarts.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create cart indexes: %w", err)
		}
		if err := mongoWishlists.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("create wishlist indexes: %w", err)
		}
		carts, wishlists = mongoCarts, mongoWishlists
		log.Info("connected to MongoDB", "db", cfg.MongoDBName)
	default:
		return fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}

	// Catalog
	var products catalog.Catalog
	switch {
	case cfg.CatalogDB != "":
		db, err := catalog.NewSQLite(cfg.CatalogDB)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := db.RunMigrations(); err != nil {
			return err
		}
		products = db
		log.Info("using SQLite catalog", "path", cfg.CatalogDB)
	case cfg.CatalogFile != "":
		mem, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return err
		}
		products = mem
		log.Info("loaded catalog file", "path", cfg.CatalogFile, "products", len(mem.List()))
	default:
		products = catalog.NewMemory(catalog.DefaultProducts()...)
	}

	// Snapshot cache
	var (
		cartCache     cache.SnapshotCache[domain.Cart]     = cache.Noop[domain.Cart]{}
		wishlistCache cache.SnapshotCache[domain.Wishlist] = cache.Noop[domain.Wishlist]{}
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		cartCache = cache.NewRedisCache[domain.Cart](redisClient, "cart")
		wishlistCache = cache.NewRedisCache[domain.Wishlist](redisClient, "wishlist")
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
	}

	cartService := service.NewCartService(carts, cartCache, products, log)
	wishlistService := service.NewWishlistService(wishlists, wishlistCache, products, log)

	// Checkout consumer
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(cartService, poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, log)
		closers = append(closers, p.Close)
		go p.Run(ctx)
		log.Info("checkout consumer started", "topic", cfg.KafkaTopic)
	}

	router := h.NewRouter(cartService, wishlistService, auth.NewVerifier(cfg.JWTSecret), h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("storefront-api starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
