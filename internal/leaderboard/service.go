package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/pkg/log"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Service struct {
	db *sql.DB
}

var _ game.ResultRecorder = (*Service)(nil)

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type LeaderboardEntry struct {
	PlayerID  string    `json:"player_id"`
	Username  string    `json:"username"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	UpdatedAt time.Time `json:"updated_at"`
}

const upsertStats = `
	INSERT INTO stats (player_id, wins, losses, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (player_id) DO UPDATE
	SET wins = stats.wins + EXCLUDED.wins,
	    losses = stats.losses + EXCLUDED.losses,
	    updated_at = EXCLUDED.updated_at
`

// RecordResult adds a win for winnerID and a loss for loserID in one
// transaction. Games without a winner or a second player are not counted.
func (s *Service) RecordResult(ctx context.Context, winnerID, loserID string) error {
	if winnerID == "" || loserID == "" || winnerID == loserID {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin stats update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, upsertStats, winnerID, 1, 0, now); err != nil {
		return fmt.Errorf("failed to record win for %s: %w", winnerID, err)
	}
	if _, err := tx.ExecContext(ctx, upsertStats, loserID, 0, 1, now); err != nil {
		return fmt.Errorf("failed to record loss for %s: %w", loserID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats update: %w", err)
	}
	log.Debug("Recorded result %s beat %s", winnerID, loserID)
	return nil
}

// ClampLimit keeps a requested page size within [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.player_id, u.username, s.wins, s.losses, s.updated_at
		FROM stats s
		JOIN users u ON s.player_id = u.id
		ORDER BY s.wins DESC, s.losses ASC, u.username ASC
		LIMIT $1
	`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	leaderboard := []LeaderboardEntry{}
	for rows.Next() {
		var entry LeaderboardEntry
		if err := rows.Scan(&entry.PlayerID, &entry.Username, &entry.Wins, &entry.Losses, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		leaderboard = append(leaderboard, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return leaderboard, nil
}
