package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/store"
)

const DefaultTTL = 30 * 24 * time.Hour

type Entry struct {
	ID        string         `json:"id"`
	GameID    string         `json:"gameId"`
	PlayerID  string         `json:"playerId,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func entryKey(id string) string     { return "audit:" + id }
func gameIndexKey(id string) string { return "audit:game:" + id }

// Service writes audit entries to the store. Recording never fails the caller.
type Service struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(st store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: st, ttl: ttl, now: time.Now}
}

func (s *Service) Record(ctx context.Context, gameID, playerID, action string, details map[string]any) {
	entry := Entry{
		ID:        uuid.NewString(),
		GameID:    gameID,
		PlayerID:  playerID,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UTC(),
	}
	if err := s.write(ctx, entry); err != nil {
		log.Warn("Failed to record audit entry %s for game %s: %v", action, gameID, err)
	}
}

func (s *Service) write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if err := s.store.Set(ctx, entryKey(entry.ID), data, s.ttl); err != nil {
		return err
	}
	if err := s.store.SAdd(ctx, gameIndexKey(entry.GameID), entry.ID); err != nil {
		return err
	}
	return s.store.Expire(ctx, gameIndexKey(entry.GameID), s.ttl)
}

// ListForGame returns the surviving entries of a game, oldest first.
func (s *Service) ListForGame(ctx context.Context, gameID string) ([]Entry, error) {
	ids, err := s.store.SMembers(ctx, gameIndexKey(gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries for game %s: %w", gameID, err)
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		data, err := s.store.Get(ctx, entryKey(id))
		if err != nil {
			return nil, fmt.Errorf("failed to load audit entry %s: %w", id, err)
		}
		if data == nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warn("Skipping corrupt audit entry %s: %v", id, err)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
