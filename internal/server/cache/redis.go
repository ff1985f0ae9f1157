package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBaseTTL = 15 * time.Minute
	maxJitter      = 5 * time.Minute
)

type RedisCache[T any] struct {
	client  *redis.Client
	prefix  string
	baseTTL time.Duration
}

// NewRedisCache stores values of T as JSON under "<prefix>:<owner>".
func NewRedisCache[T any](client *redis.Client, prefix string) *RedisCache[T] {
	return &RedisCache[T]{
		client:  client,
		prefix:  prefix,
		baseTTL: defaultBaseTTL,
	}
}

func (r *RedisCache[T]) Get(ctx context.Context, owner string) (*T, error) {
	data, err := r.client.Get(ctx, r.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("unmarshal %s failed: %w", r.prefix, err)
	}
	return &value, nil
}

// Set spreads expiry over [baseTTL, baseTTL+maxJitter) so entries written
// together do not expire together.
func (r *RedisCache[T]) Set(ctx context.Context, owner string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", r.prefix, err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(maxJitter)))
	if err := r.client.Set(ctx, r.key(owner), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache[T]) Delete(ctx context.Context, owners ...string) error {
	if len(owners) == 0 {
		return nil
	}
	keys := make([]string, len(owners))
	for i, owner := range owners {
		keys[i] = r.key(owner)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache[T]) key(owner string) string {
	return fmt.Sprintf("%s:%s", r.prefix, owner)
}
