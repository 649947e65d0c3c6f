package registry

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"xo-backend/internal/entity"
)

const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// RoomIDLength is the length of generated room identifiers.
	RoomIDLength = 6

	maxIDAttempts = 10
)

// Connection is the transport-side handle the coordination layer needs:
// a stable identifier, a way to push one text message, and a way to hang up.
// The websocket transport implements it; tests use fakes.
type Connection interface {
	ID() string
	WriteText(data []byte) error
	Close(code int, reason string) error
}

// Registry holds the process-wide bookkeeping of live rooms: which
// connections belong to which room and which player identity a connection
// currently represents. A single lock covers all maps so the bidirectional
// connection/room pairing is updated as one step.
type Registry struct {
	mu         sync.RWMutex
	games      map[string]*entity.Game
	rooms      map[string]map[string]Connection
	connRoom   map[string]string
	connPlayer map[string]string
}

func New() *Registry {
	return &Registry{
		games:      make(map[string]*entity.Game),
		rooms:      make(map[string]map[string]Connection),
		connRoom:   make(map[string]string),
		connPlayer: make(map[string]string),
	}
}

// CreateGame - allocates a fresh room identifier, unique among live rooms,
// and registers a new game under it.
func (that *Registry) CreateGame() *entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := that.newRoomIDLocked()
	game := entity.NewGame(id)
	that.games[id] = game

	return game
}

// Game - looks up a live game by room id.
func (that *Registry) Game(id string) (*entity.Game, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	game, ok := that.games[id]

	return game, ok
}

// Attach - binds a connection to a room under a player identity. A
// connection is attached to at most one room; any previous binding is
// dropped first.
func (that *Registry) Attach(conn Connection, roomID, playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.detachLocked(conn)

	peers, ok := that.rooms[roomID]
	if !ok {
		peers = make(map[string]Connection)
		that.rooms[roomID] = peers
	}

	peers[conn.ID()] = conn
	that.connRoom[conn.ID()] = roomID
	that.connPlayer[conn.ID()] = playerID
}

// Detach - removes the connection from all maps and returns what it was
// attached to. Used uniformly by disconnect and explicit leave.
func (that *Registry) Detach(conn Connection) (roomID, playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.detachLocked(conn)
}

// Binding - the room and player identity a connection is attached to.
func (that *Registry) Binding(conn Connection) (roomID, playerID string, ok bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	roomID, ok = that.connRoom[conn.ID()]
	if !ok {
		return "", "", false
	}

	return roomID, that.connPlayer[conn.ID()], true
}

// Connections - a copy of the room's live connection set.
func (that *Registry) Connections(roomID string) []Connection {
	that.mu.RLock()
	defer that.mu.RUnlock()

	peers := that.rooms[roomID]
	conns := make([]Connection, 0, len(peers))
	for _, conn := range peers {
		conns = append(conns, conn)
	}

	return conns
}

// ConnectionFor - the connection currently bound to a player identity in a
// room, if any. Used by reconnect to displace a stale connection.
func (that *Registry) ConnectionFor(roomID, playerID string) (Connection, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for connID, conn := range that.rooms[roomID] {
		if that.connPlayer[connID] == playerID {
			return conn, true
		}
	}

	return nil, false
}

// RoomIsEmpty - true if no connection is attached to the room.
func (that *Registry) RoomIsEmpty(roomID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.rooms[roomID]) == 0
}

// RemoveGame - evicts the room and any bindings still pointing at it.
func (that *Registry) RemoveGame(roomID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for connID := range that.rooms[roomID] {
		delete(that.connRoom, connID)
		delete(that.connPlayer, connID)
	}

	delete(that.rooms, roomID)
	delete(that.games, roomID)
}

func (that *Registry) detachLocked(conn Connection) (roomID, playerID string) {
	connID := conn.ID()

	roomID, ok := that.connRoom[connID]
	if !ok {
		return "", ""
	}

	playerID = that.connPlayer[connID]
	delete(that.connRoom, connID)
	delete(that.connPlayer, connID)

	if peers, ok := that.rooms[roomID]; ok {
		delete(peers, connID)
		if len(peers) == 0 {
			delete(that.rooms, roomID)
		}
	}

	return roomID, playerID
}

// newRoomIDLocked - draws a candidate id from the room alphabet, retrying
// on collision against live rooms, then falls back to a time-derived id.
func (that *Registry) newRoomIDLocked() string {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		code := make([]byte, RoomIDLength)
		for i := range code {
			code[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
		}

		id := string(code)
		if _, taken := that.games[id]; !taken {
			return id
		}
	}

	return strings.ToUpper(strconv.FormatInt(time.Now().UnixNano(), 36))
}
