// Package session wires the identity boundary, the remote client, both caches
// and the migration coordinator into one object with an init, login and logout
// lifecycle. Nothing in this package is global; every Session owns its state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fjod/go_cart/cartsync/internal/cache"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/identity"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/fjod/go_cart/cartsync/internal/migration"
	"github.com/fjod/go_cart/cartsync/internal/remote"
)

type Session struct {
	boundary   *identity.Boundary
	remote     *remote.Client
	cart       *cache.CartCache
	wishlist   *cache.WishlistCache
	migrations *migration.Coordinator
	log        *slog.Logger

	migrateTimeout time.Duration

	closeOnce sync.Once
	unsubs    []func()
}

type options struct {
	log        *slog.Logger
	httpClient *http.Client
	identity   *identity.Identity
	tokens     func() string
}

type Option func(*options)

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithHTTPClient replaces the instrumented default client of the remote store.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithIdentity resumes a previously persisted identity.
func WithIdentity(id identity.Identity) Option {
	return func(o *options) {
		o.identity = &id
	}
}

func WithTokenGenerator(fn func() string) Option {
	return func(o *options) {
		o.tokens = fn
	}
}

func New(cfg config.Client, opts ...Option) *Session {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	var boundaryOpts []identity.Option
	if o.identity != nil {
		boundaryOpts = append(boundaryOpts, identity.WithIdentity(*o.identity))
	}
	if o.tokens != nil {
		boundaryOpts = append(boundaryOpts, identity.WithTokenGenerator(o.tokens))
	}
	boundary := identity.NewBoundary(boundaryOpts...)

	remoteOpts := []remote.Option{remote.WithLogger(o.log)}
	if o.httpClient != nil {
		remoteOpts = append(remoteOpts, remote.WithHTTPClient(o.httpClient))
	} else if cfg.RequestTimeout > 0 {
		remoteOpts = append(remoteOpts, remote.WithTimeout(cfg.RequestTimeout))
	}
	if cfg.BreakerThreshold > 0 {
		remoteOpts = append(remoteOpts, remote.WithBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown))
	}
	client := remote.NewClient(cfg.BaseURL, boundary.Current, remoteOpts...)

	cart := cache.NewCartCache(client, cache.WithLogger(o.log))
	wishlist := cache.NewWishlistCache(client,
		cache.WithLogger(o.log), cache.WithMaxAge(cfg.WishlistMaxAge),
		cache.WithScope(func() string {
			id := boundary.Current()
			return id.SessionToken + ":" + id.UserID
		}))

	migrateTimeout := cfg.MigrateTimeout
	if migrateTimeout <= 0 {
		migrateTimeout = 30 * time.Second
	}

	s := &Session{
		boundary:       boundary,
		remote:         client,
		cart:           cart,
		wishlist:       wishlist,
		migrations:     migration.NewCoordinator(client, cart, wishlist, migration.WithLogger(o.log)),
		log:            o.log.With("component", "session"),
		migrateTimeout: migrateTimeout,
	}

	s.unsubs = append(s.unsubs,
		boundary.OnLogin(s.onLogin),
		boundary.OnLogout(s.onLogout),
	)
	return s
}

// onLogin runs on the goroutine that produced the transition, so the merge has
// finished by the time Login returns. A transition is merged at most once, so
// the merge keeps the caller's context values but not its cancellation; only
// migrateTimeout bounds it.
func (s *Session) onLogin(ctx context.Context, tr identity.Transition) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.migrateTimeout)
	defer cancel()
	_ = s.migrations.HandleTransition(ctx, tr)
}

func (s *Session) onLogout(identity.Identity) {
	s.cart.Reset()
	s.wishlist.Reset()
	s.log.Info("logged out, local state cleared")
}

// Init loads the cart and the wishlist for the current identity.
func (s *Session) Init(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.cart.GetCart(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.wishlist.GetWishlist(ctx)
		return err
	})
	return g.Wait()
}

// Login upgrades the session to userID and merges the anonymous cart and
// wishlist into the account. The login itself stands even when a merge fails;
// the returned error then wraps *migration.MigrationError. Cancelling ctx does
// not abandon a merge that has started.
func (s *Session) Login(ctx context.Context, userID, accessToken string) error {
	tr, fired, err := s.boundary.Login(ctx, userID, accessToken)
	if err != nil {
		return err
	}
	return s.awaitMigration(ctx, tr, fired)
}

// ObserveAccount reports the account data the host app currently sees; nil
// means signed out.
func (s *Session) ObserveAccount(ctx context.Context, acc *identity.Account) error {
	tr, fired, err := s.boundary.ObserveAccount(ctx, acc)
	if err != nil {
		return err
	}
	return s.awaitMigration(ctx, tr, fired)
}

func (s *Session) awaitMigration(ctx context.Context, tr identity.Transition, fired bool) error {
	if !fired {
		return nil
	}
	if err := s.migrations.Wait(ctx, tr.ID); err != nil && !errors.Is(err, migration.ErrUnknownTransition) {
		return err
	}
	return nil
}

// Logout drops the account identity for a fresh anonymous session and clears
// both caches.
func (s *Session) Logout() identity.Identity {
	return s.boundary.Logout()
}

func (s *Session) Identity() identity.Identity {
	return s.boundary.Current()
}

func (s *Session) Cart() *cache.CartCache {
	return s.cart
}

func (s *Session) Wishlist() *cache.WishlistCache {
	return s.wishlist
}

func (s *Session) Migrations() *migration.Coordinator {
	return s.migrations
}

// Close detaches the session from its identity boundary.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, unsub := range s.unsubs {
			unsub()
		}
	})
}
