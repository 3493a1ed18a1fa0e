package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// ErrConcurrentUpdate is returned by Update when the watched key changed
// before the transaction committed.
var ErrConcurrentUpdate = apperr.New(apperr.ErrConflict, "concurrent update, try again")

type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func unavailable(err error, op string) error {
	return apperr.Wrap(apperr.ErrUnavailable, err, "redis "+op)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "get "+key)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err, "set "+key)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err, "del")
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err, "exists "+key)
	}
	return n == 1, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, unavailable(err, "scan "+pattern)
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return unavailable(err, "expire "+key)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	var fnErr error
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		queued := &queuedTx{}
		next, err := fn(current, queued)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			for _, op := range queued.ops {
				op(ctx, pipe)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case fnErr != nil:
		return fnErr
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("update %s: %w", key, ErrConcurrentUpdate)
	case err != nil:
		return unavailable(err, "update "+key)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}
	if err := s.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return unavailable(err, "hset "+key)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	values, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err, "hgetall "+key)
	}
	return values, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if err := s.rdb.SAdd(ctx, key, toArgs(members)...).Err(); err != nil {
		return unavailable(err, "sadd "+key)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if err := s.rdb.SRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return unavailable(err, "srem "+key)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err, "smembers "+key)
	}
	return members, nil
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, unavailable(err, "sismember "+key)
	}
	return ok, nil
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	if err := s.rdb.LPush(ctx, key, toArgs(values)...).Err(); err != nil {
		return unavailable(err, "lpush "+key)
	}
	return nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	if err := s.rdb.RPush(ctx, key, toArgs(values)...).Err(); err != nil {
		return unavailable(err, "rpush "+key)
	}
	return nil
}

func (s *RedisStore) RPop(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, "rpop "+key)
	}
	return value, true, nil
}

func (s *RedisStore) LRem(ctx context.Context, key string, value string) error {
	if err := s.rdb.LRem(ctx, key, 0, value).Err(); err != nil {
		return unavailable(err, "lrem "+key)
	}
	return nil
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err, "llen "+key)
	}
	return n, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return unavailable(err, "publish "+channel)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	// wait for the confirmation so no message published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, unavailable(err, "subscribe "+channel)
	}

	out := make(chan []byte)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-done:
				return
			}
		}
	}()
	return &redisSubscription{pubsub: pubsub, messages: out, done: done}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable(err, "ping")
	}
	return nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (r *redisSubscription) Messages() <-chan []byte {
	return r.messages
}

// Close stops delivery even if nobody is reading Messages any more.
func (r *redisSubscription) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.pubsub.Close()
}

type queuedTx struct {
	ops []func(ctx context.Context, pipe redis.Pipeliner)
}

func (q *queuedTx) SAdd(key string, members ...string) {
	q.ops = append(q.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, key, toArgs(members)...)
	})
}

func (q *queuedTx) SRem(key string, members ...string) {
	q.ops = append(q.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, key, toArgs(members)...)
	})
}

func (q *queuedTx) Expire(key string, ttl time.Duration) {
	q.ops = append(q.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Expire(ctx, key, ttl)
	})
}

func (q *queuedTx) Del(keys ...string) {
	q.ops = append(q.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, keys...)
	})
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
