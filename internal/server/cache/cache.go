// Package cache is the backend's read-through snapshot cache. Entries are
// whole documents keyed by owner; writers invalidate, readers repopulate.
package cache

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cache miss")

type SnapshotCache[T any] interface {
	Get(ctx context.Context, owner string) (*T, error)
	Set(ctx context.Context, owner string, value *T) error
	Delete(ctx context.Context, owners ...string) error
}

// Noop never stores anything; every Get is a miss. Used when Redis is not configured.
type Noop[T any] struct{}

func (Noop[T]) Get(context.Context, string) (*T, error) { return nil, ErrCacheMiss }
func (Noop[T]) Set(context.Context, string, *T) error   { return nil }
func (Noop[T]) Delete(context.Context, ...string) error { return nil }
