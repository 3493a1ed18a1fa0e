package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/krishanu7/battleship-engine/internal/audit"
	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/internal/metrics"
	"github.com/krishanu7/battleship-engine/internal/room"
	"github.com/krishanu7/battleship-engine/internal/ws"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/redis"
	"github.com/krishanu7/battleship-engine/pkg/store"
)

// services is the state layer every command shares.
type services struct {
	store     *store.RedisStore
	audit     *audit.Service
	publisher *ws.Publisher
	games     *game.StateManager
	rooms     *room.Service
	close     func()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newServices connects to Redis and builds the game and room services.
// results may be nil when no database is configured.
func newServices(ctx context.Context, results game.ResultRecorder) (*services, error) {
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Init(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	st := store.NewRedisStore(rdb)
	s := &services{
		store:     st,
		audit:     audit.NewService(st, cfg.Game.AuditTTL),
		publisher: ws.NewPublisher(st),
		close: func() {
			if err := rdb.Close(); err != nil {
				log.Warn("Failed to close Redis client: %v", err)
			}
		},
	}

	var rooms *room.Service
	s.games = game.NewStateManager(st, game.Options{
		Notifier:  s.publisher,
		Auditor:   s.audit,
		Results:   results,
		Rooms:     game.RoomCloserFunc(func(ctx context.Context, roomID string) error { return rooms.CloseRoom(ctx, roomID) }),
		TTL:       cfg.Game.TTL,
		Retention: cfg.Game.Retention,
	})
	rooms = room.NewService(st, s.games, cfg.Game.RoomTTL)
	s.rooms = rooms
	return s, nil
}
