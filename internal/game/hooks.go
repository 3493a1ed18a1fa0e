package game

import "context"

// Event types pushed to players.
const (
	EventPlayerJoined = "player_joined"
	EventShipsPlaced  = "ships_placed"
	EventGameStarted  = "game_started"
	EventShot         = "shot"
	EventGameOver     = "game_over"
	EventMatchFound   = "match_found"
)

type Event struct {
	Type    string `json:"type"`
	GameID  string `json:"gameId"`
	Player  string `json:"player"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notifier pushes an event to Event.Player. Delivery is best effort and
// implementations handle their own failures.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Auditor records who did what to a game. Implementations handle their own
// failures.
type Auditor interface {
	Record(ctx context.Context, gameID, playerID, action string, details map[string]any)
}

// ResultRecorder keeps long-term win/loss tallies.
type ResultRecorder interface {
	RecordResult(ctx context.Context, winnerID, loserID string) error
}

// RoomCloser closes the room a finished game was played in.
type RoomCloser interface {
	CloseRoom(ctx context.Context, roomID string) error
}

// RoomCloserFunc adapts a function to RoomCloser.
type RoomCloserFunc func(ctx context.Context, roomID string) error

func (f RoomCloserFunc) CloseRoom(ctx context.Context, roomID string) error { return f(ctx, roomID) }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, string, string, string, map[string]any) {}
