package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/audit"
	"github.com/krishanu7/battleship-engine/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResults struct {
	mock.Mock
}

func (m *mockResults) RecordResult(ctx context.Context, winnerID, loserID string) error {
	args := m.Called(ctx, winnerID, loserID)
	return args.Error(0)
}

type fixture struct {
	manager  *StateManager
	mr       *miniredis.Miniredis
	clock    *clock
	notifier *recordingNotifier
	audit    *audit.Service
	results  *mockResults
	closed   []string
}

func newFixture(t *testing.T) *fixture {
	st, mr := storetest.New(t)
	f := &fixture{
		mr:       mr,
		clock:    newClock(),
		notifier: &recordingNotifier{},
		audit:    audit.NewService(st, time.Hour),
		results:  &mockResults{},
	}
	f.manager = NewStateManager(st, Options{
		Notifier: f.notifier,
		Auditor:  f.audit,
		Results:  f.results,
		Rooms: RoomCloserFunc(func(_ context.Context, roomID string) error {
			f.closed = append(f.closed, roomID)
			return nil
		}),
		Now: f.clock.Now,
	})
	return f
}

// activeGame creates a game between alice and bob with both fleets placed.
func (f *fixture) activeGame(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)
	started, err := f.manager.PlaceShips(ctx, gameID, "alice", validFleet())
	require.NoError(t, err)
	require.False(t, started)
	started, err = f.manager.PlaceShips(ctx, gameID, "bob", validFleet())
	require.NoError(t, err)
	require.True(t, started)
	return gameID
}

func (f *fixture) game(t *testing.T, gameID string) *Game {
	t.Helper()
	g, err := f.manager.GetGameState(context.Background(), gameID)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

func TestStateManager_CreateGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)

	g := f.game(t, gameID)
	assert.Equal(t, StatusWaiting, g.Status)
	assert.Equal(t, "alice", g.CurrentTurn)
	assert.Equal(t, "alice", g.Board1.PlayerID)
	assert.Equal(t, "bob", g.Board2.PlayerID)
	assert.Equal(t, f.clock.Now(), g.CreatedAt)
	assert.Equal(t, int64(1), g.Version)
	assert.Nil(t, g.StartedAt)

	ttl := f.mr.TTL(gameKey(gameID))
	assert.Equal(t, DefaultTTL, ttl)
	assert.True(t, f.mr.Exists(playerGamesKey("alice")))
	members, err := f.mr.SMembers(statusGamesKey(StatusWaiting))
	require.NoError(t, err)
	assert.Equal(t, []string{gameID}, members)

	for _, bad := range [][2]string{{"", "bob"}, {"alice", "alice"}} {
		_, err := f.manager.CreateGame(ctx, bad[0], bad[1])
		assert.ErrorIs(t, err, ErrInvalidPlayers)
	}
}

func TestStateManager_GetGameState_Missing(t *testing.T) {
	f := newFixture(t)
	g, err := f.manager.GetGameState(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestStateManager_JoinGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gameID, err := f.manager.CreateGame(ctx, "alice", "")
	require.NoError(t, err)

	joined, err := f.manager.JoinGame(ctx, "bob", gameID)
	require.NoError(t, err)
	assert.True(t, joined)

	// joining twice is harmless and does not bump the version
	joined, err = f.manager.JoinGame(ctx, "bob", gameID)
	require.NoError(t, err)
	assert.True(t, joined)
	g := f.game(t, gameID)
	assert.Equal(t, "bob", g.Player2ID)
	assert.Equal(t, "bob", g.Board2.PlayerID)
	assert.Equal(t, int64(2), g.Version)

	_, err = f.manager.JoinGame(ctx, "carol", gameID)
	assert.ErrorIs(t, err, ErrGameFull)
	_, err = f.manager.JoinGame(ctx, "carol", "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
	_, err = f.manager.JoinGame(ctx, "", gameID)
	assert.ErrorIs(t, err, ErrNotAPlayer)

	joinedEvents := f.notifier.ofType(EventPlayerJoined)
	require.Len(t, joinedEvents, 1)
	assert.Equal(t, "alice", joinedEvents[0].Player)

	games, err := f.manager.GetGamesByPlayer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0].ID)
}

func TestStateManager_StartGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open, err := f.manager.CreateGame(ctx, "alice", "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.StartGame(ctx, open), ErrGameNotReady)

	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, f.manager.StartGame(ctx, gameID))
	assert.ErrorIs(t, f.manager.StartGame(ctx, gameID), ErrGameNotWaiting)

	g := f.game(t, gameID)
	assert.Equal(t, StatusActive, g.Status)
	require.NotNil(t, g.StartedAt)
	assert.Equal(t, "alice", g.CurrentTurn)

	waiting, err := f.mr.SIsMember(statusGamesKey(StatusWaiting), gameID)
	require.NoError(t, err)
	assert.False(t, waiting)
	active, err := f.mr.SIsMember(activeGamesKey, gameID)
	require.NoError(t, err)
	assert.True(t, active)

	assert.Len(t, f.notifier.ofType(EventGameStarted), 2)
}

func TestStateManager_PlaceShips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.manager.PlaceShips(ctx, gameID, "carol", validFleet())
	assert.ErrorIs(t, err, ErrNotAPlayer)

	_, err = f.manager.PlaceShips(ctx, gameID, "alice", validFleet()[:3])
	require.ErrorIs(t, err, ErrInvalidPlacement)
	assert.Contains(t, apperr.Details(err), "expected exactly 1 destroyer, got 0")
	assert.Equal(t, int64(1), f.game(t, gameID).Version, "a rejected fleet writes nothing")

	started, err := f.manager.PlaceShips(ctx, gameID, "alice", validFleet())
	require.NoError(t, err)
	assert.False(t, started)
	g := f.game(t, gameID)
	assert.Len(t, g.Board1.Ships, 5)
	assert.Equal(t, StatusWaiting, g.Status)

	started, err = f.manager.PlaceShips(ctx, gameID, "bob", validFleet())
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StatusActive, f.game(t, gameID).Status)

	_, err = f.manager.PlaceShips(ctx, gameID, "alice", validFleet())
	assert.ErrorIs(t, err, ErrGameNotWaiting)
}

func TestStateManager_MakeShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.activeGame(t)

	_, err := f.manager.MakeShot(ctx, gameID, "bob", 9, 9)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = f.manager.MakeShot(ctx, gameID, "carol", 9, 9)
	assert.ErrorIs(t, err, ErrNotAPlayer)
	_, err = f.manager.MakeShot(ctx, gameID, "alice", 10, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	result, err := f.manager.MakeShot(ctx, gameID, "alice", 0, 8)
	require.NoError(t, err)
	assert.Equal(t, ShotResult{Hit: true, ShipType: Destroyer, NextTurn: "bob"}, result)

	// a hit still passes the turn
	_, err = f.manager.MakeShot(ctx, gameID, "alice", 1, 8)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	result, err = f.manager.MakeShot(ctx, gameID, "bob", 9, 9)
	require.NoError(t, err)
	assert.Equal(t, ShotResult{NextTurn: "alice"}, result)

	result, err = f.manager.MakeShot(ctx, gameID, "alice", 1, 8)
	require.NoError(t, err)
	assert.True(t, result.Sunk)
	assert.False(t, result.GameOver)

	_, err = f.manager.MakeShot(ctx, gameID, "bob", 9, 9)
	assert.ErrorIs(t, err, ErrAlreadyHit)
	assert.Equal(t, "bob", f.game(t, gameID).CurrentTurn, "a rejected shot keeps the turn")

	shots := f.notifier.ofType(EventShot)
	assert.Len(t, shots, 6)
}

func TestStateManager_MakeShot_RequiresActiveGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.manager.MakeShot(ctx, gameID, "alice", 0, 0)
	assert.ErrorIs(t, err, ErrGameNotActive)
	_, err = f.manager.MakeShot(ctx, "missing", "alice", 0, 0)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

// Started without fleets, an empty board must not count as defeated.
func TestStateManager_MakeShot_EmptyFleetDoesNotLose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, f.manager.StartGame(ctx, gameID))

	result, err := f.manager.MakeShot(ctx, gameID, "alice", 3, 3)
	require.NoError(t, err)
	assert.False(t, result.GameOver)
	assert.Equal(t, StatusActive, f.game(t, gameID).Status)
}

func TestStateManager_PlayToVictory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.results.On("RecordResult", mock.Anything, "alice", "bob").Return(nil).Once()

	gameID, err := f.manager.CreateGameForRoom(ctx, "room-1", "alice", "bob")
	require.NoError(t, err)
	_, err = f.manager.PlaceShips(ctx, gameID, "alice", validFleet())
	require.NoError(t, err)
	_, err = f.manager.PlaceShips(ctx, gameID, "bob", validFleet())
	require.NoError(t, err)

	targets := fleetCells(validFleet())
	misses := 0
	var result ShotResult
	for i, c := range targets {
		result, err = f.manager.MakeShot(ctx, gameID, "alice", c.X, c.Y)
		require.NoError(t, err)
		require.True(t, result.Hit)
		if i < len(targets)-1 {
			require.False(t, result.GameOver)
			_, err = f.manager.MakeShot(ctx, gameID, "bob", 9-misses/BoardSize, misses%BoardSize)
			require.NoError(t, err)
			misses++
		}
	}
	assert.True(t, result.GameOver)
	assert.Equal(t, "alice", result.Winner)
	assert.Equal(t, "alice", result.NextTurn, "the turn is left as it was")

	g := f.game(t, gameID)
	assert.Equal(t, StatusFinished, g.Status)
	assert.Equal(t, "alice", g.Winner)
	require.NotNil(t, g.FinishedAt)
	for _, ship := range g.Board2.Ships {
		assert.True(t, ship.IsSunk)
	}

	_, err = f.manager.MakeShot(ctx, gameID, "bob", 5, 5)
	assert.ErrorIs(t, err, ErrGameNotActive)

	active, err := f.manager.GetActiveGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	finished, err := f.mr.SIsMember(statusGamesKey(StatusFinished), gameID)
	require.NoError(t, err)
	assert.True(t, finished)

	over := f.notifier.ofType(EventGameOver)
	require.Len(t, over, 2)
	assert.Equal(t, "Game over, alice wins", over[0].Message)
	f.results.AssertExpectations(t)
	assert.Equal(t, []string{"room-1"}, f.closed)

	entries, err := f.audit.ListForGame(ctx, gameID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Subset(t, actions, []string{"create_game", "place_ships", "start_game", "shot", "game_over"})
}

func TestStateManager_EndGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.results.On("RecordResult", mock.Anything, "bob", "alice").Return(errors.New("db down")).Once()

	waiting, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.EndGame(ctx, waiting, ""), ErrGameNotActive)

	gameID := f.activeGame(t)
	assert.ErrorIs(t, f.manager.EndGame(ctx, gameID, "carol"), ErrInvalidWinner)

	// a failing result recorder does not fail the game
	require.NoError(t, f.manager.EndGame(ctx, gameID, "bob"))
	g := f.game(t, gameID)
	assert.Equal(t, StatusFinished, g.Status)
	assert.Equal(t, "bob", g.Winner)
	f.results.AssertExpectations(t)

	assert.ErrorIs(t, f.manager.EndGame(ctx, gameID, "bob"), ErrGameNotActive)

	abandoned := f.activeGame(t)
	require.NoError(t, f.manager.EndGame(ctx, abandoned, ""))
	assert.Equal(t, "", f.game(t, abandoned).Winner)
	f.results.AssertNumberOfCalls(t, "RecordResult", 1)
	assert.Empty(t, f.closed, "games outside rooms close nothing")
}

func TestStateManager_ConcurrentShots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID := f.activeGame(t)

	const shooters = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < shooters; i++ {
		wg.Add(1)
		go func(y int) {
			defer wg.Done()
			<-start
			_, err := f.manager.MakeShot(ctx, gameID, "alice", 9, y)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, IsConflict(err), "unexpected error: %v", err)
		assert.True(t, apperr.Retryable(err))
	}

	g := f.game(t, gameID)
	assert.Equal(t, "bob", g.CurrentTurn)
	hits := 0
	for y := 0; y < BoardSize; y++ {
		if g.Board2.Grid[9][y].IsHit {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestStateManager_GetGamesByPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.manager.CreateGame(ctx, "carol", "alice")
	require.NoError(t, err)
	_, err = f.manager.CreateGame(ctx, "carol", "dave")
	require.NoError(t, err)

	games, err := f.manager.GetGamesByPlayer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, second, games[0].ID)
	assert.Equal(t, first, games[1].ID)

	// an expired game leaves a stale index entry that reads skip
	f.mr.Del(gameKey(first))
	games, err = f.manager.GetGamesByPlayer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, games, 1)

	games, err = f.manager.GetGamesByPlayer(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestStateManager_CleanupFinishedGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.results.On("RecordResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	old := f.activeGame(t)
	require.NoError(t, f.manager.EndGame(ctx, old, "alice"))
	f.clock.Advance(6 * 24 * time.Hour)

	recent := f.activeGame(t)
	require.NoError(t, f.manager.EndGame(ctx, recent, "bob"))
	running := f.activeGame(t)

	expired := f.activeGame(t)
	require.NoError(t, f.manager.EndGame(ctx, expired, "bob"))
	f.mr.Del(gameKey(expired))

	f.clock.Advance(2 * 24 * time.Hour)
	deleted, err := f.manager.CleanupFinishedGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	g, err := f.manager.GetGameState(ctx, old)
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.NotNil(t, f.game(t, recent))
	assert.NotNil(t, f.game(t, running))

	finished, err := f.mr.SMembers(statusGamesKey(StatusFinished))
	require.NoError(t, err)
	assert.Equal(t, []string{recent}, finished)
	aliceGames, err := f.mr.SMembers(playerGamesKey("alice"))
	require.NoError(t, err)
	assert.NotContains(t, aliceGames, old)

	deleted, err = f.manager.CleanupFinishedGames(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStateManager_FinishedGameKeptForRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.results.On("RecordResult", mock.Anything, "alice", "bob").Return(nil)

	gameID := f.activeGame(t)
	assert.Equal(t, DefaultTTL, f.mr.TTL(gameKey(gameID)))
	require.NoError(t, f.manager.EndGame(ctx, gameID, "alice"))
	assert.Equal(t, DefaultRetention+DefaultTTL, f.mr.TTL(gameKey(gameID)))

	f.mr.FastForward(DefaultTTL + time.Hour)
	g := f.game(t, gameID)
	assert.Equal(t, StatusFinished, g.Status)

	games, err := f.manager.GetGamesByPlayer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0].ID)

	f.mr.FastForward(DefaultRetention)
	g, err = f.manager.GetGameState(ctx, gameID)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestStateManager_CleanupPrunesExpiredIndexEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := f.activeGame(t)
	expiredActive := f.activeGame(t)
	expiredWaiting, err := f.manager.CreateGame(ctx, "carol", "dave")
	require.NoError(t, err)
	f.mr.Del(gameKey(expiredActive))
	f.mr.Del(gameKey(expiredWaiting))

	deleted, err := f.manager.CleanupFinishedGames(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	assert.False(t, f.mr.Exists(statusGamesKey(StatusWaiting)))
	for _, key := range []string{statusGamesKey(StatusActive), activeGamesKey} {
		members, err := f.mr.SMembers(key)
		require.NoError(t, err)
		assert.Equal(t, []string{live}, members, key)
	}

	games, err := f.manager.GetActiveGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, live, games[0].ID)
}

func TestStateManager_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mr.Close()

	_, err := f.manager.CreateGame(ctx, "alice", "bob")
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.True(t, apperr.Retryable(err))

	_, err = f.manager.MakeShot(ctx, "any", "alice", 0, 0)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	games, err := f.manager.GetActiveGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, games)
}
