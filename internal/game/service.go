package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/metrics"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/store"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultRetention = 7 * 24 * time.Hour

	activeGamesKey = "active:games"
)

func gameKey(id string) string              { return "game:" + id }
func playerGamesKey(playerID string) string { return "player:" + playerID + ":games" }
func statusGamesKey(status Status) string   { return "status:" + string(status) + ":games" }

// Manager is the game lifecycle as seen by transports.
type Manager interface {
	CreateGame(ctx context.Context, player1ID, player2ID string) (string, error)
	CreateGameForRoom(ctx context.Context, roomID, player1ID, player2ID string) (string, error)
	JoinGame(ctx context.Context, playerID, gameID string) (bool, error)
	StartGame(ctx context.Context, gameID string) error
	PlaceShips(ctx context.Context, gameID, playerID string, fleet []Ship) (bool, error)
	MakeShot(ctx context.Context, gameID, playerID string, x, y int) (ShotResult, error)
	EndGame(ctx context.Context, gameID, winnerID string) error
	GetGameState(ctx context.Context, gameID string) (*Game, error)
	GetGamesByPlayer(ctx context.Context, playerID string) ([]Game, error)
	GetActiveGames(ctx context.Context) ([]Game, error)
	CleanupFinishedGames(ctx context.Context) (int, error)
}

type ShotResult struct {
	Hit      bool     `json:"hit"`
	Sunk     bool     `json:"sunk"`
	ShipType ShipType `json:"shipType,omitempty"`
	GameOver bool     `json:"gameOver"`
	Winner   string   `json:"winner,omitempty"`
	NextTurn string   `json:"nextTurn"`
}

type Options struct {
	Engine    Engine
	Notifier  Notifier
	Auditor   Auditor
	Results   ResultRecorder
	Rooms     RoomCloser
	TTL       time.Duration
	Retention time.Duration
	Now       func() time.Time
}

// StateManager is the only writer of game aggregates. Every mutation is an
// optimistic transaction on the game key, so two writers racing on the same
// game cannot both commit.
type StateManager struct {
	store     store.Store
	engine    Engine
	notifier  Notifier
	auditor   Auditor
	results   ResultRecorder
	rooms     RoomCloser
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

var _ Manager = (*StateManager)(nil)

func NewStateManager(st store.Store, opts Options) *StateManager {
	s := &StateManager{
		store:     st,
		engine:    opts.Engine,
		notifier:  opts.Notifier,
		auditor:   opts.Auditor,
		results:   opts.Results,
		rooms:     opts.Rooms,
		ttl:       opts.TTL,
		retention: opts.Retention,
		now:       opts.Now,
	}
	if s.engine == nil {
		s.engine = NewEngine()
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.auditor == nil {
		s.auditor = noopAuditor{}
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *StateManager) CreateGame(ctx context.Context, player1ID, player2ID string) (string, error) {
	return s.CreateGameForRoom(ctx, "", player1ID, player2ID)
}

// CreateGameForRoom creates a waiting game. player2ID may be empty, leaving
// the second slot open for JoinGame.
func (s *StateManager) CreateGameForRoom(ctx context.Context, roomID, player1ID, player2ID string) (string, error) {
	if player1ID == "" || player1ID == player2ID {
		return "", ErrInvalidPlayers
	}

	g := Game{
		ID:          uuid.NewString(),
		Player1ID:   player1ID,
		Player2ID:   player2ID,
		Board1:      s.engine.GenerateEmptyBoard(),
		Board2:      s.engine.GenerateEmptyBoard(),
		CurrentTurn: player1ID,
		Status:      StatusWaiting,
		RoomID:      roomID,
		CreatedAt:   s.now().UTC(),
		Version:     1,
	}
	g.Board1.PlayerID = player1ID
	g.Board2.PlayerID = player2ID

	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("failed to marshal game: %w", err)
	}
	if err := s.store.Set(ctx, gameKey(g.ID), data, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store game: %w", err)
	}

	for _, playerID := range g.Players() {
		s.indexPlayer(ctx, playerID, g.ID)
	}
	if err := s.store.SAdd(ctx, statusGamesKey(StatusWaiting), g.ID); err != nil {
		log.Warn("Failed to index game %s by status: %v", g.ID, err)
	}

	metrics.RecordGameCreated()
	s.auditor.Record(ctx, g.ID, player1ID, "create_game", map[string]any{"player2": player2ID, "room": roomID})
	log.Info("Created game %s for %s and %s", g.ID, player1ID, player2ID)
	return g.ID, nil
}

func (s *StateManager) indexPlayer(ctx context.Context, playerID, gameID string) {
	key := playerGamesKey(playerID)
	if err := s.store.SAdd(ctx, key, gameID); err != nil {
		log.Warn("Failed to index game %s for player %s: %v", gameID, playerID, err)
		return
	}
	if err := s.store.Expire(ctx, key, s.finishedTTL()); err != nil {
		log.Warn("Failed to set expiry on %s: %v", key, err)
	}
}

// errUnchanged aborts an update without writing and without failing.
var errUnchanged = errors.New("unchanged")

// mutate loads the game, applies fn and commits the result only if nobody
// else wrote the game in between.
func (s *StateManager) mutate(ctx context.Context, op, gameID string, fn func(g *Game, tx store.Tx) error) (Game, error) {
	var updated Game
	err := s.store.Update(ctx, gameKey(gameID), s.ttl, func(current []byte, tx store.Tx) ([]byte, error) {
		if current == nil {
			return nil, ErrGameNotFound
		}
		var g Game
		if err := json.Unmarshal(current, &g); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game %s: %w", gameID, err)
		}
		if err := fn(&g, tx); err != nil {
			updated = g
			return nil, err
		}
		g.Version++
		updated = g
		return json.Marshal(g)
	})
	if errors.Is(err, errUnchanged) {
		return updated, nil
	}
	if errors.Is(err, store.ErrConcurrentUpdate) {
		metrics.RecordConflict(op)
		log.Warn("Lost update race on game %s during %s", gameID, op)
	}
	if err != nil {
		return Game{}, fmt.Errorf("%s %s: %w", op, gameID, err)
	}
	return updated, nil
}

// JoinGame puts playerID into the first open slot of a waiting game.
func (s *StateManager) JoinGame(ctx context.Context, playerID, gameID string) (bool, error) {
	if playerID == "" {
		return false, ErrNotAPlayer
	}
	joined := false
	g, err := s.mutate(ctx, "join game", gameID, func(g *Game, tx store.Tx) error {
		if g.Status != StatusWaiting {
			return ErrGameNotWaiting
		}
		if g.HasPlayer(playerID) {
			return errUnchanged
		}
		switch {
		case g.Player1ID == "":
			g.Player1ID = playerID
			g.Board1.PlayerID = playerID
			g.CurrentTurn = playerID
		case g.Player2ID == "":
			g.Player2ID = playerID
			g.Board2.PlayerID = playerID
		default:
			return ErrGameFull
		}
		tx.SAdd(playerGamesKey(playerID), g.ID)
		tx.Expire(playerGamesKey(playerID), s.ttl)
		joined = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if joined {
		s.auditor.Record(ctx, gameID, playerID, "join_game", nil)
		s.notifyOpponent(ctx, &g, playerID, EventPlayerJoined, fmt.Sprintf("%s joined the game", playerID), nil)
	}
	return true, nil
}

func (s *StateManager) StartGame(ctx context.Context, gameID string) error {
	g, err := s.mutate(ctx, "start game", gameID, func(g *Game, tx store.Tx) error {
		return s.start(g, tx)
	})
	if err != nil {
		return err
	}
	s.announceStart(ctx, &g)
	return nil
}

// start moves a waiting game with two players to active and migrates its
// status-index entry in the same transaction.
func (s *StateManager) start(g *Game, tx store.Tx) error {
	if g.Status != StatusWaiting {
		return ErrGameNotWaiting
	}
	if g.Player1ID == "" || g.Player2ID == "" {
		return ErrGameNotReady
	}
	now := s.now().UTC()
	g.Status = StatusActive
	g.StartedAt = &now
	if !g.HasPlayer(g.CurrentTurn) {
		g.CurrentTurn = g.Player1ID
	}
	tx.SRem(statusGamesKey(StatusWaiting), g.ID)
	tx.SAdd(statusGamesKey(StatusActive), g.ID)
	tx.SAdd(activeGamesKey, g.ID)
	return nil
}

func (s *StateManager) announceStart(ctx context.Context, g *Game) {
	s.auditor.Record(ctx, g.ID, "", "start_game", map[string]any{"firstTurn": g.CurrentTurn})
	for _, playerID := range g.Players() {
		s.notifier.Notify(ctx, Event{
			Type:    EventGameStarted,
			GameID:  g.ID,
			Player:  playerID,
			Message: fmt.Sprintf("Game started, %s shoots first", g.CurrentTurn),
			Data:    map[string]string{"currentTurn": g.CurrentTurn},
		})
	}
	log.Info("Game %s started, first turn: %s", g.ID, g.CurrentTurn)
}

// PlaceShips replaces playerID's fleet. The game starts on its own once both
// players have a fleet; the returned flag reports whether that happened.
func (s *StateManager) PlaceShips(ctx context.Context, gameID, playerID string, fleet []Ship) (bool, error) {
	started := false
	g, err := s.mutate(ctx, "place ships", gameID, func(g *Game, tx store.Tx) error {
		if g.Status != StatusWaiting {
			return ErrGameNotWaiting
		}
		board := g.BoardFor(playerID)
		if board == nil {
			return ErrNotAPlayer
		}
		if result := s.engine.ValidatePlacement(fleet, board); !result.Valid {
			return ErrInvalidPlacement.WithDetails(result.Errors)
		}
		placed, err := s.engine.PlaceShipsOnBoard(*board, fleet)
		if err != nil {
			return err
		}
		*board = placed

		if g.Player1ID != "" && g.Player2ID != "" && g.Board1.HasShips() && g.Board2.HasShips() {
			if err := s.start(g, tx); err != nil {
				return err
			}
			started = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	log.Info("Stored fleet for player %s in game %s", playerID, gameID)
	s.auditor.Record(ctx, gameID, playerID, "place_ships", map[string]any{"ships": len(fleet)})
	s.notifyOpponent(ctx, &g, playerID, EventShipsPlaced, fmt.Sprintf("%s placed their ships", playerID), nil)
	if started {
		s.announceStart(ctx, &g)
	}
	return started, nil
}

// MakeShot fires at the opponent's board. Only the player whose turn it is
// may shoot; the turn passes to the opponent unless the shot wins the game.
func (s *StateManager) MakeShot(ctx context.Context, gameID, playerID string, x, y int) (ShotResult, error) {
	var result ShotResult
	g, err := s.mutate(ctx, "make shot", gameID, func(g *Game, tx store.Tx) error {
		if g.Status != StatusActive {
			return ErrGameNotActive
		}
		if !g.HasPlayer(playerID) {
			return ErrNotAPlayer
		}
		if g.CurrentTurn != playerID {
			return ErrNotYourTurn
		}
		opponentID := g.Opponent(playerID)
		target := g.BoardFor(opponentID)

		attack, err := s.engine.ProcessAttack(target, x, y)
		if err != nil {
			return err
		}
		result = ShotResult{Hit: attack.Hit, Sunk: attack.Sunk, ShipType: attack.ShipType}

		// an empty fleet would count as sunk, so only a placed fleet can lose
		if target.HasShips() && s.engine.CheckWinCondition(target) {
			s.finish(g, tx, playerID)
			result.GameOver = true
			result.Winner = playerID
		} else {
			g.CurrentTurn = opponentID
		}
		result.NextTurn = g.CurrentTurn
		return nil
	})
	if err != nil {
		return ShotResult{}, err
	}

	metrics.RecordShot(result.Hit, result.Sunk)
	coordinate := FormatCoordinate(x, y)
	s.auditor.Record(ctx, gameID, playerID, "shot", map[string]any{
		"x": x, "y": y, "hit": result.Hit, "sunk": result.Sunk, "shipType": string(result.ShipType),
	})
	log.Debug("Player %s attacked %s in game %s: hit=%t sunk=%t", playerID, coordinate, gameID, result.Hit, result.Sunk)

	message := fmt.Sprintf("%s fired at %s: miss", playerID, coordinate)
	if result.Sunk {
		message = fmt.Sprintf("%s fired at %s: sunk %s", playerID, coordinate, result.ShipType)
	} else if result.Hit {
		message = fmt.Sprintf("%s fired at %s: hit", playerID, coordinate)
	}
	shot := map[string]any{"x": x, "y": y, "coordinate": coordinate, "result": result}
	for _, p := range g.Players() {
		s.notifier.Notify(ctx, Event{Type: EventShot, GameID: gameID, Player: p, Message: message, Data: shot})
	}

	if result.GameOver {
		s.announceFinish(ctx, &g, "victory")
	}
	return result, nil
}

// finish ends the game with winnerID (possibly empty) and migrates the index
// entries in the same transaction. The current turn is left as it was.
func (s *StateManager) finish(g *Game, tx store.Tx, winnerID string) {
	now := s.now().UTC()
	g.Status = StatusFinished
	g.Winner = winnerID
	g.FinishedAt = &now
	tx.SRem(statusGamesKey(StatusActive), g.ID)
	tx.SAdd(statusGamesKey(StatusFinished), g.ID)
	tx.SRem(activeGamesKey, g.ID)
	// finished games must outlive the retention window so cleanup can see them
	tx.Expire(gameKey(g.ID), s.finishedTTL())
	for _, playerID := range g.Players() {
		tx.Expire(playerGamesKey(playerID), s.finishedTTL())
	}
}

// finishedTTL is how long a finished game is kept: the retention window plus
// one regular TTL of slack for the sweep to run.
func (s *StateManager) finishedTTL() time.Duration {
	return s.retention + s.ttl
}

// EndGame finishes an active game early, e.g. on forfeit. winnerID may be
// empty for an abandoned game.
func (s *StateManager) EndGame(ctx context.Context, gameID, winnerID string) error {
	g, err := s.mutate(ctx, "end game", gameID, func(g *Game, tx store.Tx) error {
		if g.Status != StatusActive {
			return ErrGameNotActive
		}
		if winnerID != "" && !g.HasPlayer(winnerID) {
			return ErrInvalidWinner
		}
		s.finish(g, tx, winnerID)
		return nil
	})
	if err != nil {
		return err
	}
	s.announceFinish(ctx, &g, "ended")
	return nil
}

func (s *StateManager) announceFinish(ctx context.Context, g *Game, reason string) {
	metrics.RecordGameFinished(reason)
	s.auditor.Record(ctx, g.ID, g.Winner, "game_over", map[string]any{"reason": reason})
	log.Info("Game %s finished (%s), winner: %q", g.ID, reason, g.Winner)

	message := "Game over"
	if g.Winner != "" {
		message = fmt.Sprintf("Game over, %s wins", g.Winner)
	}
	for _, playerID := range g.Players() {
		s.notifier.Notify(ctx, Event{
			Type:    EventGameOver,
			GameID:  g.ID,
			Player:  playerID,
			Message: message,
			Data:    map[string]string{"winner": g.Winner},
		})
	}

	if s.results != nil && g.Winner != "" {
		loser := g.Opponent(g.Winner)
		if err := s.results.RecordResult(ctx, g.Winner, loser); err != nil {
			log.Error("Failed to record result of game %s: %v", g.ID, err)
		}
	}
	if s.rooms != nil && g.RoomID != "" {
		if err := s.rooms.CloseRoom(ctx, g.RoomID); err != nil {
			log.Warn("Failed to close room %s of game %s: %v", g.RoomID, g.ID, err)
		}
	}
}

func (s *StateManager) notifyOpponent(ctx context.Context, g *Game, playerID, eventType, message string, data any) {
	opponentID := g.Opponent(playerID)
	if opponentID == "" {
		return
	}
	s.notifier.Notify(ctx, Event{Type: eventType, GameID: g.ID, Player: opponentID, Message: message, Data: data})
}

// GetGameState returns the stored game, or nil if it does not exist.
func (s *StateManager) GetGameState(ctx context.Context, gameID string) (*Game, error) {
	data, err := s.store.Get(ctx, gameKey(gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to get game %s: %w", gameID, err)
	}
	if data == nil {
		return nil, nil
	}
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game %s: %w", gameID, err)
	}
	return &g, nil
}

// GetGamesByPlayer lists the games playerID takes part in, newest first.
func (s *StateManager) GetGamesByPlayer(ctx context.Context, playerID string) ([]Game, error) {
	games := s.loadIndexed(ctx, playerGamesKey(playerID), func(g *Game) bool {
		return g.HasPlayer(playerID)
	})
	return games, nil
}

// GetActiveGames lists games currently in progress, newest first.
func (s *StateManager) GetActiveGames(ctx context.Context) ([]Game, error) {
	games := s.loadIndexed(ctx, activeGamesKey, func(g *Game) bool {
		return g.Status == StatusActive
	})
	return games, nil
}

// loadIndexed resolves an index set to games. Indexes may be stale, so each
// game is re-checked with keep; index failures yield an empty result.
func (s *StateManager) loadIndexed(ctx context.Context, indexKey string, keep func(g *Game) bool) []Game {
	ids, err := s.store.SMembers(ctx, indexKey)
	if err != nil {
		log.Warn("Failed to read index %s: %v", indexKey, err)
		return []Game{}
	}
	games := make([]Game, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGameState(ctx, id)
		if err != nil {
			log.Warn("Failed to load game %s from %s: %v", id, indexKey, err)
			continue
		}
		if g == nil || !keep(g) {
			continue
		}
		games = append(games, *g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games
}

// CleanupFinishedGames deletes finished games past the retention window and
// drops index entries for games that no longer exist. A failure on one game
// is logged and the sweep moves on.
func (s *StateManager) CleanupFinishedGames(ctx context.Context) (int, error) {
	ids, err := s.store.SMembers(ctx, statusGamesKey(StatusFinished))
	if err != nil {
		return 0, fmt.Errorf("failed to list finished games: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	deleted := 0
	for _, id := range ids {
		g, err := s.GetGameState(ctx, id)
		if err != nil {
			log.Error("Cleanup: failed to load game %s: %v", id, err)
			continue
		}
		if g == nil || g.Status != StatusFinished {
			// expired or drifted; only the index entry is ours to fix
			if err := s.store.SRem(ctx, statusGamesKey(StatusFinished), id); err != nil {
				log.Warn("Cleanup: failed to drop stale index entry %s: %v", id, err)
			}
			continue
		}
		if g.FinishedAt == nil || g.FinishedAt.After(cutoff) {
			continue
		}
		if err := s.deleteGame(ctx, g); err != nil {
			log.Error("Cleanup: failed to delete game %s: %v", id, err)
			continue
		}
		deleted++
	}

	s.pruneIndex(ctx, statusGamesKey(StatusWaiting), StatusWaiting)
	s.pruneIndex(ctx, statusGamesKey(StatusActive), StatusActive)
	s.pruneIndex(ctx, activeGamesKey, StatusActive)

	metrics.RecordCleanup(deleted)
	if deleted > 0 {
		log.Info("Cleanup removed %d finished games", deleted)
	}
	return deleted, nil
}

// pruneIndex drops ids from indexKey whose game has expired or has moved
// past status.
func (s *StateManager) pruneIndex(ctx context.Context, indexKey string, status Status) {
	ids, err := s.store.SMembers(ctx, indexKey)
	if err != nil {
		log.Warn("Cleanup: failed to read index %s: %v", indexKey, err)
		return
	}
	var stale []string
	for _, id := range ids {
		g, err := s.GetGameState(ctx, id)
		if err != nil {
			log.Warn("Cleanup: failed to load game %s from %s: %v", id, indexKey, err)
			continue
		}
		if g == nil || g.Status != status {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := s.store.SRem(ctx, indexKey, stale...); err != nil {
		log.Warn("Cleanup: failed to prune %s: %v", indexKey, err)
		return
	}
	log.Debug("Cleanup: pruned %d stale entries from %s", len(stale), indexKey)
}

func (s *StateManager) deleteGame(ctx context.Context, g *Game) error {
	if err := s.store.Del(ctx, gameKey(g.ID)); err != nil {
		return err
	}
	var failed []error
	for _, playerID := range g.Players() {
		if err := s.store.SRem(ctx, playerGamesKey(playerID), g.ID); err != nil {
			failed = append(failed, err)
		}
	}
	for _, key := range []string{statusGamesKey(StatusFinished), activeGamesKey} {
		if err := s.store.SRem(ctx, key, g.ID); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		// the aggregate is gone; leftover index entries are skipped on read
		log.Warn("Cleanup: game %s deleted but indexes not fully cleared: %v", g.ID, errors.Join(failed...))
	}
	return nil
}

// IsConflict reports whether err means the caller lost a race and may retry
// after reloading the game.
func IsConflict(err error) bool {
	return errors.Is(err, apperr.ErrConflict)
}
