package apperror

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingField     = errors.New("missing required field")
	ErrUnknownGame      = errors.New("unknown game")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrAlreadyInGame    = errors.New("connection is already in a game")
	ErrGameFull         = errors.New("game is full")
	ErrNotParticipant   = errors.New("player is not part of the game")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrOutOfBounds      = errors.New("coordinates out of bounds")
	ErrCellOccupied     = errors.New("cell is already occupied")
)

// Code - maps an error to the machine-readable code sent to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrUnknownGame):
		return "unknown_game"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrAlreadyInGame):
		return "already_in_game"
	case errors.Is(err, ErrGameFull):
		return "game_full"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrNotYourTurn):
		return "out_of_turn"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrCellOccupied):
		return "cell_occupied"
	default:
		return "internal_error"
	}
}
