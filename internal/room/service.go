package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krishanu7/battleship-engine/internal/metrics"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/store"
)

const DefaultTTL = time.Hour

func roomKey(id string) string { return "room:" + id }

// GameCreator creates the game a room hands off to when it starts.
type GameCreator interface {
	CreateGameForRoom(ctx context.Context, roomID, player1ID, player2ID string) (string, error)
}

type Service struct {
	store store.Store
	games GameCreator
	ttl   time.Duration
	now   func() time.Time
}

func NewService(st store.Store, games GameCreator, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store: st,
		games: games,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *Service) CreateRoom(ctx context.Context, creatorID, name string) (*Room, error) {
	if creatorID == "" {
		return nil, ErrMissingCreator
	}
	id := uuid.NewString()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Room " + id[:8]
	}
	r := Room{
		ID:        id,
		Name:      name,
		CreatorID: creatorID,
		Status:    StatusWaiting,
		CreatedAt: s.now().UTC(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := s.store.Set(ctx, roomKey(id), data, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store room: %w", err)
	}
	metrics.RecordRoomCreated()
	log.Info("Player %s created room %s", creatorID, id)
	return &r, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	data, err := s.store.Get(ctx, roomKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	if data == nil {
		return nil, ErrRoomNotFound
	}
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room %s: %w", roomID, err)
	}
	return &r, nil
}

var errUnchanged = errors.New("unchanged")

func (s *Service) mutate(ctx context.Context, op, roomID string, fn func(r *Room) error) (*Room, error) {
	var updated Room
	err := s.store.Update(ctx, roomKey(roomID), s.ttl, func(current []byte, _ store.Tx) ([]byte, error) {
		if current == nil {
			return nil, ErrRoomNotFound
		}
		var r Room
		if err := json.Unmarshal(current, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room %s: %w", roomID, err)
		}
		if err := fn(&r); err != nil {
			updated = r
			return nil, err
		}
		updated = r
		return json.Marshal(r)
	})
	if errors.Is(err, errUnchanged) {
		return &updated, nil
	}
	if errors.Is(err, store.ErrConcurrentUpdate) {
		metrics.RecordConflict(op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, roomID, err)
	}
	return &updated, nil
}

// JoinRoom takes the opponent slot of a waiting room. Joining a room you
// already joined is a no-op.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) (*Room, error) {
	return s.mutate(ctx, "join room", roomID, func(r *Room) error {
		if r.Status != StatusWaiting {
			return ErrRoomNotWaiting
		}
		if userID == r.CreatorID {
			return ErrSelfJoin
		}
		if r.OpponentID == userID {
			return errUnchanged
		}
		if r.OpponentID != "" {
			return ErrRoomFull
		}
		r.OpponentID = userID
		log.Info("Player %s joined room %s", userID, roomID)
		return nil
	})
}

// GetActiveRooms lists rooms still waiting for an opponent, newest first.
func (s *Service) GetActiveRooms(ctx context.Context) ([]Room, error) {
	keys, err := s.store.Scan(ctx, roomKey("*"))
	if err != nil {
		log.Warn("Failed to scan rooms: %v", err)
		return []Room{}, nil
	}
	rooms := make([]Room, 0, len(keys))
	for _, key := range keys {
		r, err := s.GetRoom(ctx, strings.TrimPrefix(key, roomKey("")))
		if err != nil {
			if !errors.Is(err, ErrRoomNotFound) {
				log.Warn("Failed to load %s: %v", key, err)
			}
			continue
		}
		if r.Status == StatusWaiting {
			rooms = append(rooms, *r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// StartGame activates a room with an opponent and creates its game. If the
// room update then loses a race, the created game is left to expire.
func (s *Service) StartGame(ctx context.Context, roomID string) (*Room, error) {
	return s.mutate(ctx, "start room", roomID, func(r *Room) error {
		if r.Status != StatusWaiting {
			return ErrRoomNotWaiting
		}
		if r.OpponentID == "" {
			return ErrNoOpponent
		}
		if s.games != nil {
			gameID, err := s.games.CreateGameForRoom(ctx, r.ID, r.CreatorID, r.OpponentID)
			if err != nil {
				return fmt.Errorf("failed to create game: %w", err)
			}
			r.GameID = gameID
		}
		now := s.now().UTC()
		r.Status = StatusActive
		r.StartedAt = &now
		log.Info("Room %s started game %s", r.ID, r.GameID)
		return nil
	})
}

func (s *Service) FinishGame(ctx context.Context, roomID string) (*Room, error) {
	return s.mutate(ctx, "finish room", roomID, func(r *Room) error {
		if r.Status != StatusActive {
			return ErrRoomNotActive
		}
		now := s.now().UTC()
		r.Status = StatusFinished
		r.FinishedAt = &now
		return nil
	})
}

// CloseRoom finishes the room once its game is over. Rooms that are already
// finished or gone are left alone.
func (s *Service) CloseRoom(ctx context.Context, roomID string) error {
	_, err := s.FinishGame(ctx, roomID)
	if errors.Is(err, ErrRoomNotActive) || errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	return err
}
