// Package migration merges anonymous cart and wishlist data into the account on
// login. Attempts are keyed by transition id, so each anonymous → authenticated
// edge is merged at most once no matter how often it is reported.
package migration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/identity"
	"github.com/fjod/go_cart/cartsync/internal/logger"
)

type Status int

const (
	Idle Status = iota
	Migrating
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Migrating:
		return "migrating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

type Merger interface {
	MigrateCart(ctx context.Context) error
	MigrateWishlist(ctx context.Context) error
}

type CartRefresher interface {
	GetCart(ctx context.Context) (*domain.Cart, error)
}

type WishlistRefresher interface {
	GetWishlist(ctx context.Context) (*domain.Wishlist, error)
}

// DefaultRetention is how long a finished attempt is remembered.
const DefaultRetention = time.Hour

type attempt struct {
	status   Status
	err      error
	done     chan struct{}
	finished time.Time
}

type Coordinator struct {
	merger   Merger
	cart     CartRefresher
	wishlist WishlistRefresher
	log      *slog.Logger

	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	attempts map[string]*attempt
}

type Option func(*Coordinator)

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithRetention sets how long finished attempts are kept. Duplicate
// notifications of a transition arrive within moments of each other, so the
// window only needs to outlast those.
func WithRetention(d time.Duration) Option {
	return func(c *Coordinator) {
		c.retention = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(m Merger, cart CartRefresher, wishlist WishlistRefresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		merger:   m,
		cart:     cart,
		wishlist: wishlist,
		log:       logger.Nop(),
		retention: DefaultRetention,
		now:       time.Now,
		attempts:  make(map[string]*attempt),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "migration")
	return c
}

// HandleTransition runs the merge for tr unless an attempt for tr.ID already
// exists, in which case it returns nil immediately. The returned error joins the
// *MigrationError of every resource whose merge failed.
func (c *Coordinator) HandleTransition(ctx context.Context, tr identity.Transition) error {
	c.mu.Lock()
	c.pruneLocked()
	if _, seen := c.attempts[tr.ID]; seen {
		c.mu.Unlock()
		c.log.DebugContext(ctx, "transition already handled", "transition_id", tr.ID)
		return nil
	}
	a := &attempt{status: Migrating, done: make(chan struct{})}
	c.attempts[tr.ID] = a
	c.mu.Unlock()

	c.log.InfoContext(ctx, "migrating anonymous data", "transition_id", tr.ID, "user_id", tr.UserID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = c.migrate(ctx, tr, ResourceCart, c.merger.MigrateCart, func(ctx context.Context) error {
			_, err := c.cart.GetCart(ctx)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[1] = c.migrate(ctx, tr, ResourceWishlist, c.merger.MigrateWishlist, func(ctx context.Context) error {
			_, err := c.wishlist.GetWishlist(ctx)
			return err
		})
	}()
	wg.Wait()

	err := errors.Join(errs...)

	c.mu.Lock()
	a.err = err
	a.finished = c.now()
	if err != nil {
		a.status = Failed
	} else {
		a.status = Done
	}
	close(a.done)
	c.mu.Unlock()

	if err != nil {
		c.log.ErrorContext(ctx, "migration failed", "transition_id", tr.ID, "error", err)
	} else {
		c.log.InfoContext(ctx, "migration done", "transition_id", tr.ID)
	}
	return err
}

// pruneLocked forgets attempts that finished more than retention ago. Running
// ones are always kept.
func (c *Coordinator) pruneLocked() {
	cutoff := c.now().Add(-c.retention)
	for id, a := range c.attempts {
		if a.status != Migrating && a.finished.Before(cutoff) {
			delete(c.attempts, id)
		}
	}
}

// migrate merges one resource and then refreshes its cache whatever the merge
// outcome. A refresh failure is only logged: the merge result stands and the
// cache keeps its last snapshot.
func (c *Coordinator) migrate(ctx context.Context, tr identity.Transition, resource string,
	merge, refresh func(context.Context) error) error {
	var mergeErr error
	if err := merge(ctx); err != nil {
		mergeErr = &MigrationError{Resource: resource, TransitionID: tr.ID, Err: err}
		c.log.WarnContext(ctx, "merge failed", "resource", resource, "transition_id", tr.ID, "error", err)
	}
	if err := refresh(ctx); err != nil {
		c.log.WarnContext(ctx, "refresh after merge failed", "resource", resource, "transition_id", tr.ID, "error", err)
	}
	return mergeErr
}

// Status reports the state of the attempt for a transition; Idle when none
// exists or it has been pruned.
func (c *Coordinator) Status(transitionID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[transitionID]
	if !ok {
		return Idle
	}
	return a.status
}

// Wait blocks until the attempt for transitionID has finished and returns its
// result. A finished attempt is reported even when ctx is already done.
func (c *Coordinator) Wait(ctx context.Context, transitionID string) error {
	c.mu.Lock()
	a, ok := c.attempts[transitionID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownTransition
	}

	select {
	case <-a.done:
	default:
		select {
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return a.err
}
