package room

import "github.com/krishanu7/battleship-engine/internal/apperr"

var (
	ErrRoomNotFound   = apperr.New(apperr.ErrNotFound, "room not found")
	ErrRoomNotWaiting = apperr.New(apperr.ErrBadState, "room is not accepting players")
	ErrRoomNotActive  = apperr.New(apperr.ErrBadState, "room has no game in progress")
	ErrSelfJoin       = apperr.New(apperr.ErrValidation, "cannot join your own room")
	ErrRoomFull       = apperr.New(apperr.ErrBadState, "room already has an opponent")
	ErrNoOpponent     = apperr.New(apperr.ErrBadState, "room needs an opponent to start")
	ErrMissingCreator = apperr.New(apperr.ErrValidation, "room needs a creator")
)
