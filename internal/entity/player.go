package entity

// Player is one participant of a room. Seated players carry the X or O
// symbol; spectators carry none and may not move.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// IsSeated reports whether the player holds a symbol.
func (that Player) IsSeated() bool {
	return that.Symbol != EmptyCellMark
}

// Move is a single applied move, kept in the game's append-only history.
type Move struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	PlayerID  string `json:"playerId"`
	Timestamp int64  `json:"timestamp"`
}

// MoveResult is the authoritative outcome of one applied move; the caller
// broadcasts it to the room.
type MoveResult struct {
	Winner   string
	Draw     bool
	NextTurn string
}

// Snapshot is a consistent copy of a game taken under its lock, safe to
// serialize and broadcast after the lock is released.
type Snapshot struct {
	ID      string
	Status  string
	Board   [9]string
	Turn    string
	Players map[string]Player
}
