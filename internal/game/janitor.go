package game

import (
	"context"
	"time"

	"github.com/krishanu7/battleship-engine/pkg/log"
)

type Cleaner interface {
	CleanupFinishedGames(ctx context.Context) (int, error)
}

// Janitor runs the finished-game sweep on a fixed interval.
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
}

func NewJanitor(cleaner Cleaner, interval time.Duration) *Janitor {
	return &Janitor{cleaner: cleaner, interval: interval}
}

// Run sweeps once per interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	log.Info("Cleanup janitor starting, interval %s", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Cleanup janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.cleaner.CleanupFinishedGames(ctx); err != nil {
				log.Error("Cleanup sweep failed: %v", err)
			}
		}
	}
}
