package game

import "github.com/krishanu7/battleship-engine/internal/apperr"

var (
	ErrGameNotFound     = apperr.New(apperr.ErrNotFound, "game not found")
	ErrGameNotWaiting   = apperr.New(apperr.ErrBadState, "game is not waiting for players")
	ErrGameNotActive    = apperr.New(apperr.ErrBadState, "game is not active")
	ErrGameFull         = apperr.New(apperr.ErrBadState, "game already has two players")
	ErrGameNotReady     = apperr.New(apperr.ErrBadState, "game needs two players to start")
	ErrNotAPlayer       = apperr.New(apperr.ErrValidation, "player is not part of this game")
	ErrInvalidPlayers   = apperr.New(apperr.ErrValidation, "a game needs a first player and two distinct players")
	ErrInvalidWinner    = apperr.New(apperr.ErrValidation, "winner must be one of the players")
	ErrNotYourTurn      = apperr.New(apperr.ErrConflict, "not your turn")
	ErrOutOfRange       = apperr.New(apperr.ErrValidation, "coordinates out of range")
	ErrAlreadyHit       = apperr.New(apperr.ErrValidation, "cell already hit")
	ErrInvalidPlacement = apperr.New(apperr.ErrValidation, "invalid ship placement")
)
