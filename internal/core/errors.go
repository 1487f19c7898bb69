package core

import "errors"

// Registry operation errors. These are domain errors, not protocol
// errors. The session layer reports a CheckAddGame error as "Failed
// adding game.", ErrGameFull as "Game is full." and any other JoinGame
// error as "Game does not exist."; errors from UpdateGame and
// UpdatePlayer are not reported on the wire.
var (
	ErrNameTaken      = errors.New("game name taken")
	ErrGameNotFound   = errors.New("game not found")
	ErrGameFull       = errors.New("game is full")
	ErrAlreadyInGame  = errors.New("already in game")
	ErrNotInGame      = errors.New("not in game")
	ErrCannotLowerCap = errors.New("cannot lower capacity below current player count")
)
