package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/internal/metrics"
	"github.com/krishanu7/battleship-engine/internal/room"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/store"
)

const (
	queueKey  = "matchmaking:queue"  // FIFO of waiting players, pushed left and popped right
	queuedKey = "matchmaking:queued" // set of the same players for membership checks

	// Channel carries a trigger whenever a player joins the queue.
	Channel = "matchmaking"

	DefaultResultTTL = 10 * time.Minute
	DefaultSweep     = 5 * time.Second
)

func resultKey(playerID string) string { return "match:player:" + playerID }

var (
	ErrMissingPlayer = apperr.New(apperr.ErrValidation, "player id is required")
	ErrAlreadyQueued = apperr.New(apperr.ErrBadState, "player already in queue")
	ErrNotQueued     = apperr.New(apperr.ErrNotFound, "player not in queue")
)

type Status string

const (
	StatusInQueue  Status = "in_queue"
	StatusMatched  Status = "matched"
	StatusNotFound Status = "not_found"
)

type MatchResult struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	RoomID  string `json:"roomId"`
	GameID  string `json:"gameId"`
}

// Rooms is the part of the room service a match needs.
type Rooms interface {
	CreateRoom(ctx context.Context, creatorID, name string) (*room.Room, error)
	JoinRoom(ctx context.Context, roomID, userID string) (*room.Room, error)
	StartGame(ctx context.Context, roomID string) (*room.Room, error)
}

type Service struct {
	store     store.Store
	rooms     Rooms
	notifier  game.Notifier
	resultTTL time.Duration
	sweep     time.Duration
}

func NewService(st store.Store, rooms Rooms, notifier game.Notifier) *Service {
	return &Service{
		store:     st,
		rooms:     rooms,
		notifier:  notifier,
		resultTTL: DefaultResultTTL,
		sweep:     DefaultSweep,
	}
}

func (s *Service) AddToQueue(ctx context.Context, playerID string) error {
	if playerID == "" {
		return ErrMissingPlayer
	}
	exists, err := s.store.SIsMember(ctx, queuedKey, playerID)
	if err != nil {
		return fmt.Errorf("failed to check queue set: %w", err)
	}
	if exists {
		return ErrAlreadyQueued
	}

	if err := s.store.LPush(ctx, queueKey, playerID); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}
	if err := s.store.SAdd(ctx, queuedKey, playerID); err != nil {
		// Rollback list addition on set failure
		if rbErr := s.store.LRem(ctx, queueKey, playerID); rbErr != nil {
			log.Warn("Failed to roll back queue entry for %s: %v", playerID, rbErr)
		}
		return fmt.Errorf("failed to add to queue set: %w", err)
	}
	// a new search replaces whatever the player was last matched into
	if err := s.store.Del(ctx, resultKey(playerID)); err != nil {
		log.Warn("Failed to clear last match of %s: %v", playerID, err)
	}

	if err := s.store.Publish(ctx, Channel, []byte(playerID)); err != nil {
		log.Warn("Failed to trigger matchmaker for %s: %v", playerID, err)
	}
	log.Info("Player %s joined the matchmaking queue", playerID)
	return nil
}

func (s *Service) RemoveFromQueue(ctx context.Context, playerID string) error {
	exists, err := s.store.SIsMember(ctx, queuedKey, playerID)
	if err != nil {
		return fmt.Errorf("failed to check queue set: %w", err)
	}
	if !exists {
		return ErrNotQueued
	}
	if err := s.store.LRem(ctx, queueKey, playerID); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := s.store.SRem(ctx, queuedKey, playerID); err != nil {
		return fmt.Errorf("failed to remove from set: %w", err)
	}
	log.Info("Player %s left the matchmaking queue", playerID)
	return nil
}

func (s *Service) QueueLength(ctx context.Context) (int64, error) {
	return s.store.LLen(ctx, queueKey)
}

// MatchPlayers pairs the two longest-waiting players into a room and starts
// its game. It returns nil without error when fewer than two are queued.
func (s *Service) MatchPlayers(ctx context.Context) (*MatchResult, error) {
	p1, ok, err := s.store.RPop(ctx, queueKey)
	if err != nil || !ok {
		return nil, err
	}
	p2, ok, err := s.store.RPop(ctx, queueKey)
	if err != nil || !ok {
		s.requeue(ctx, p1)
		return nil, err
	}
	if err := s.store.SRem(ctx, queuedKey, p1, p2); err != nil {
		log.Warn("Failed to drop %s and %s from the queue set: %v", p1, p2, err)
	}

	result, err := s.pair(ctx, p1, p2)
	if err != nil {
		s.requeue(ctx, p2, p1)
		return nil, fmt.Errorf("failed to match %s and %s: %w", p1, p2, err)
	}

	data, err := json.Marshal(result)
	if err == nil {
		for _, playerID := range []string{p1, p2} {
			if err := s.store.Set(ctx, resultKey(playerID), data, s.resultTTL); err != nil {
				log.Warn("Failed to store match result for %s: %v", playerID, err)
			}
		}
	}

	metrics.RecordMatch()
	log.Info("Matched players %s and %s in room %s", p1, p2, result.RoomID)
	if s.notifier != nil {
		for _, playerID := range []string{p1, p2} {
			s.notifier.Notify(ctx, game.Event{
				Type:    game.EventMatchFound,
				GameID:  result.GameID,
				Player:  playerID,
				Message: "Match found",
				Data:    result,
			})
		}
	}
	return result, nil
}

func (s *Service) pair(ctx context.Context, p1, p2 string) (*MatchResult, error) {
	r, err := s.rooms.CreateRoom(ctx, p1, "")
	if err != nil {
		return nil, err
	}
	if _, err := s.rooms.JoinRoom(ctx, r.ID, p2); err != nil {
		return nil, err
	}
	started, err := s.rooms.StartGame(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &MatchResult{
		Player1: p1,
		Player2: p2,
		RoomID:  started.ID,
		GameID:  started.GameID,
	}, nil
}

// requeue puts players back at the front of the queue. The last one given
// is the next to be popped.
func (s *Service) requeue(ctx context.Context, playerIDs ...string) {
	if err := s.store.RPush(ctx, queueKey, playerIDs...); err != nil {
		log.Error("Failed to requeue %v: %v", playerIDs, err)
		return
	}
	if err := s.store.SAdd(ctx, queuedKey, playerIDs...); err != nil {
		log.Warn("Failed to restore queue set for %v: %v", playerIDs, err)
	}
}

// GetMatchStatus reports whether a player is waiting, was recently matched or
// is unknown to the matchmaker.
func (s *Service) GetMatchStatus(ctx context.Context, playerID string) (Status, *MatchResult, error) {
	queued, err := s.store.SIsMember(ctx, queuedKey, playerID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check queue set: %w", err)
	}
	if queued {
		return StatusInQueue, nil, nil
	}

	data, err := s.store.Get(ctx, resultKey(playerID))
	if err != nil {
		return "", nil, fmt.Errorf("failed to load match result: %w", err)
	}
	if data == nil {
		return StatusNotFound, nil, nil
	}
	var result MatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal match result: %w", err)
	}
	return StatusMatched, &result, nil
}

// RunMatchmaker pairs players whenever the queue is triggered, and on a
// periodic sweep in case a trigger was missed. Matches are sent to out when
// it is not nil. It blocks until ctx is cancelled.
func (s *Service) RunMatchmaker(ctx context.Context, out chan<- MatchResult) error {
	sub, err := s.store.Subscribe(ctx, Channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}
	defer sub.Close()

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	log.Info("Matchmaker listening on %s", Channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.Messages():
			if !ok {
				log.Warn("Matchmaking subscription closed")
				return nil
			}
		case <-ticker.C:
		}
		s.drain(ctx, out)
	}
}

func (s *Service) drain(ctx context.Context, out chan<- MatchResult) {
	for {
		length, err := s.QueueLength(ctx)
		if err != nil {
			log.Warn("Failed to read queue length: %v", err)
			return
		}
		if length < 2 {
			return
		}
		result, err := s.MatchPlayers(ctx)
		if err != nil {
			log.Error("Matchmaking failed: %v", err)
			return
		}
		if result == nil {
			return
		}
		if out == nil {
			continue
		}
		select {
		case out <- *result:
		case <-ctx.Done():
			return
		}
	}
}
