// Package store is the gateway to the shared key-value store holding all game
// and room state. Nothing above this package talks to Redis directly.
package store

import (
	"context"
	"time"
)

// UpdateFunc receives the current value of a key (nil when absent) and returns
// the value to write. Set operations queued on tx commit atomically with it.
type UpdateFunc func(current []byte, tx Tx) ([]byte, error)

// Tx queues writes that are applied together with an Update.
type Tx interface {
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	Expire(key string, ttl time.Duration)
	Del(keys ...string)
}

// Subscription is a live pub/sub subscription.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Update performs an optimistic read-modify-write of key. If another
	// writer touches key between the read and the commit, Update fails with
	// an apperr.ErrConflict error and nothing is written.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	RPop(ctx context.Context, key string) (string, bool, error)
	LRem(ctx context.Context, key string, value string) error
	LLen(ctx context.Context, key string) (int64, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Ping(ctx context.Context) error
}
