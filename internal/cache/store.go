package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/logger"
)

type options struct {
	log    *slog.Logger
	now    func() time.Time
	maxAge time.Duration
	scope  func() string
}

type Option func(*options)

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMaxAge bounds how long a loaded snapshot counts as fresh for reads that
// may fall back to the server. Zero means a loaded snapshot never goes stale.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		o.maxAge = d
	}
}

// WithScope names the identity the cache currently serves. Membership checks
// in flight are only shared between callers that see the same scope.
func WithScope(scope func() string) Option {
	return func(o *options) {
		o.scope = scope
	}
}

func buildOptions(opts []Option) options {
	o := options{log: logger.Nop(), now: time.Now, scope: func() string { return "" }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// store holds one immutable snapshot. The pointer is swapped wholesale and the
// value behind it is never written after being stored; nil means nothing has
// been loaded since creation or the last reset.
type store[T any] struct {
	mu       sync.RWMutex
	snapshot *T
	loadedAt time.Time

	// notifyMu serialises replace+notify so subscribers observe snapshots in the
	// order they were stored.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	nextSub  int
	subs     map[int]func(*T)

	clone func(*T) *T
	now   func() time.Time
}

func newStore[T any](clone func(*T) *T, now func() time.Time) *store[T] {
	return &store[T]{
		subs:  make(map[int]func(*T)),
		clone: clone,
		now:   now,
	}
}

func (s *store[T]) get() (*T, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.loadedAt
}

func (s *store[T]) replace(v *T) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.snapshot = v
	s.loadedAt = s.now()
	s.mu.Unlock()

	s.notify(v)
}

func (s *store[T]) reset() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.snapshot = nil
	s.loadedAt = time.Time{}
	s.mu.Unlock()

	s.notify(nil)
}

func (s *store[T]) notify(v *T) {
	s.subMu.Lock()
	subs := make([]func(*T), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(s.clone(v))
	}
}

func (s *store[T]) subscribe(fn func(*T)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}
