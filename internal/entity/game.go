package entity

import (
	"sync"

	"xo-backend/internal/apperror"
)

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusXWon       = "x_won"
	StatusOWon       = "o_won"
	StatusDraw       = "draw"
	StatusFinished   = "finished"

	SymbolX       = "X"
	SymbolO       = "O"
	EmptyCellMark = ""

	BoardWidth = 3
)

// Cell is the tri-state content of one board square.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellX
	CellO
)

func (that Cell) String() string {
	switch that {
	case CellX:
		return SymbolX
	case CellO:
		return SymbolO
	default:
		return EmptyCellMark
	}
}

// WinLines - the 8 winning lines, evaluated in fixed order:
// 3 rows, 3 columns, 2 diagonals.
var WinLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Game owns one room's board, seats, turn pointer and lifecycle state.
// It is a pure state machine: no I/O, no knowledge of connections. All
// exported operations are atomic under the game's own lock, and mutating
// operations return the Snapshot taken inside the same critical section so
// callers broadcast exactly the state they produced.
type Game struct {
	mu sync.Mutex

	id      string
	board   [9]Cell
	seatX   *Player
	seatO   *Player
	players map[string]*Player
	turn    string
	status  string
	moves   []Move
}

func NewGame(id string) *Game {
	return &Game{
		id:      id,
		players: make(map[string]*Player),
		status:  StatusWaiting,
	}
}

func (that *Game) ID() string {
	return that.id
}

// AddPlayer - admits a participant. The first two distinct identities get
// the X and O seats; later ones join as spectators. Re-adding a known
// identity is a no-op. A positive limit caps seats plus spectators.
func (that *Game) AddPlayer(id, name string, limit int) (Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.players[id]; ok {
		return that.snapshotLocked(), nil
	}

	if limit > 0 && len(that.players) >= limit {
		return that.snapshotLocked(), apperror.ErrGameFull
	}

	player := &Player{ID: id, Name: name}

	switch {
	case that.seatX == nil:
		player.Symbol = SymbolX
		that.seatX = player
	case that.seatO == nil:
		player.Symbol = SymbolO
		that.seatO = player
	}

	that.players[id] = player

	if !that.terminalLocked() {
		if that.turn == "" && player.IsSeated() {
			that.turn = id
		}

		if that.seatX != nil && that.seatO != nil {
			that.status = StatusInProgress
		} else {
			that.status = StatusWaiting
		}
	}

	return that.snapshotLocked(), nil
}

// RemovePlayer - drops a participant, vacating their seat if they held one
// and handing the turn to the remaining seated player. Removing a spectator
// from a fully seated game leaves the state untouched. Returns false for an
// unknown identity.
func (that *Game) RemovePlayer(id string) (Snapshot, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.players[id]; !ok {
		return that.snapshotLocked(), false
	}

	delete(that.players, id)

	if that.seatX != nil && that.seatX.ID == id {
		that.seatX = nil
	}
	if that.seatO != nil && that.seatO.ID == id {
		that.seatO = nil
	}

	if that.turn == id {
		switch {
		case that.seatX != nil:
			that.turn = that.seatX.ID
		case that.seatO != nil:
			that.turn = that.seatO.ID
		default:
			that.turn = ""
		}
	}

	if that.seatX == nil || that.seatO == nil {
		that.status = StatusWaiting
	}

	return that.snapshotLocked(), true
}

// ApplyMove - validates and applies one move. All four failure kinds are
// checked before any cell write, so a failed move never mutates the board.
func (that *Game) ApplyMove(move Move) (MoveResult, Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[move.PlayerID]
	if !ok || !player.IsSeated() {
		return MoveResult{}, that.snapshotLocked(), apperror.ErrNotParticipant
	}

	if that.turn == "" || that.turn != move.PlayerID {
		return MoveResult{}, that.snapshotLocked(), apperror.ErrNotYourTurn
	}

	if move.X < 0 || move.X >= BoardWidth || move.Y < 0 || move.Y >= BoardWidth {
		return MoveResult{}, that.snapshotLocked(), apperror.ErrOutOfBounds
	}

	index := move.X + move.Y*BoardWidth
	if that.board[index] != CellEmpty {
		return MoveResult{}, that.snapshotLocked(), apperror.ErrCellOccupied
	}

	if player.Symbol == SymbolX {
		that.board[index] = CellX
	} else {
		that.board[index] = CellO
	}
	that.moves = append(that.moves, move)

	winner := that.winnerLocked()
	draw := winner == CellEmpty && that.boardFullLocked()

	var result MoveResult

	switch {
	case winner != CellEmpty:
		result.Winner = winner.String()
		that.turn = ""

		switch winner {
		case CellX:
			that.status = StatusXWon
		case CellO:
			that.status = StatusOWon
		default:
			that.status = StatusFinished
		}
	case draw:
		result.Draw = true
		that.turn = ""
		that.status = StatusDraw
	default:
		next := move.PlayerID
		if that.seatX != nil && that.seatO != nil {
			if that.seatX.ID == move.PlayerID {
				next = that.seatO.ID
			} else {
				next = that.seatX.ID
			}
		}

		that.turn = next
		result.NextTurn = next
		that.status = StatusInProgress
	}

	return result, that.snapshotLocked(), nil
}

// ResetForNewMatch - clears board, history and turn while preserving seated
// identities. The caller is responsible for assigning the next turn holder
// and starting the match; see Restart.
func (that *Game) ResetForNewMatch() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.resetLocked()

	return that.snapshotLocked()
}

// Restart - reset plus turn assignment in a single critical section, used
// by the start intent so policy picks who moves first.
func (that *Game) Restart(turnHolder string) Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.resetLocked()
	that.turn = turnHolder
	that.status = StatusInProgress

	return that.snapshotLocked()
}

// Snapshot - a consistent copy of the game for serialization.
func (that *Game) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.snapshotLocked()
}

func (that *Game) HasParticipant(id string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.players[id]

	return ok
}

// OtherSeatHolder - the seated identity other than id, or empty if the
// second seat is vacant.
func (that *Game) OtherSeatHolder(id string) string {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.seatX != nil && that.seatX.ID != id {
		return that.seatX.ID
	}
	if that.seatO != nil && that.seatO.ID != id {
		return that.seatO.ID
	}

	return ""
}

// Moves - a copy of the append-only move history.
func (that *Game) Moves() []Move {
	that.mu.Lock()
	defer that.mu.Unlock()

	moves := make([]Move, len(that.moves))
	copy(moves, that.moves)

	return moves
}

func (that *Game) resetLocked() {
	that.board = [9]Cell{}
	that.moves = nil
	that.turn = ""
	that.status = StatusWaiting
}

func (that *Game) winnerLocked() Cell {
	for _, line := range WinLines {
		a, b, c := that.board[line[0]], that.board[line[1]], that.board[line[2]]
		if a != CellEmpty && a == b && b == c {
			return a
		}
	}

	return CellEmpty
}

func (that *Game) boardFullLocked() bool {
	for _, cell := range that.board {
		if cell == CellEmpty {
			return false
		}
	}

	return true
}

func (that *Game) terminalLocked() bool {
	switch that.status {
	case StatusXWon, StatusOWon, StatusDraw, StatusFinished:
		return true
	default:
		return false
	}
}

func (that *Game) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:      that.id,
		Status:  that.status,
		Turn:    that.turn,
		Players: make(map[string]Player, len(that.players)),
	}

	for i, cell := range that.board {
		snap.Board[i] = cell.String()
	}

	for id, player := range that.players {
		snap.Players[id] = *player
	}

	return snap
}
