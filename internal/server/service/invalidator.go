package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/server/cache"
)

// invalidator keeps a read that raced a write from putting the pre-write
// document back into the cache. Writers bump the owner's generation before
// deleting; readers only store if the generation they started with is still
// current. Both steps hold mu, so a check+set can never straddle a bump+delete.
type invalidator[T any] struct {
	cache cache.SnapshotCache[T]
	log   *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func newInvalidator[T any](c cache.SnapshotCache[T], log *slog.Logger) *invalidator[T] {
	return &invalidator[T]{cache: c, log: log, generations: make(map[string]uint64)}
}

func (i *invalidator[T]) generation(owner string) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.generations[owner]
}

func (i *invalidator[T]) store(ctx context.Context, owner string, gen uint64, value *T) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.generations[owner] != gen {
		return
	}
	if err := i.cache.Set(ctx, owner, value); err != nil {
		i.log.WarnContext(ctx, "cache set error", "owner", owner, "error", err)
	}
}

func (i *invalidator[T]) invalidate(owners ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, owner := range owners {
		i.generations[owner]++
	}
	if err := i.cache.Delete(ctx, owners...); err != nil {
		i.log.WarnContext(ctx, "cache invalidate error", "owners", owners, "error", err)
	}
}
