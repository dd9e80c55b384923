package spy

import "errors"

var (
	ErrAlreadyActive       = errors.New("a game is already active in this room")
	ErrNoActiveGame        = errors.New("no active game")
	ErrAlreadyStarted      = errors.New("game already started")
	ErrAlreadyJoined       = errors.New("player already joined")
	ErrNotCreator          = errors.New("only the game creator may do this")
	ErrInsufficientPlayers = errors.New("not enough players")
	ErrOutOfRange          = errors.New("vote out of range")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrNotInGame           = errors.New("voter is not on the roster")
	ErrNoVotes             = errors.New("no votes to resolve")
)
