package redis

import (
	"context"
	"fmt"

	"github.com/krishanu7/battleship-engine/config"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the configured server and pings it once.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	log.Info("Connected to Redis at %s", cfg.Addr)
	return rdb, nil
}
