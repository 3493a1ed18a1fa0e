// Package storetest runs store-backed tests against an in-process Redis.
package storetest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/krishanu7/battleship-engine/pkg/store"
	"github.com/redis/go-redis/v9"
)

// New starts a miniredis server bound to t and returns a store connected to it.
func New(t testing.TB) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisStore(rdb), mr
}
