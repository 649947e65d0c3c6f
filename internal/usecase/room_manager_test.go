package usecase

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xo-backend/internal/apperror"
	"xo-backend/internal/registry"
)

var errWriteRefused = errors.New("write refused")

// fakeConn records every delivered frame, decoded, in order.
type fakeConn struct {
	id string

	mu          sync.Mutex
	frames      []map[string]any
	failWrites  bool
	closed      bool
	closeReason string
}

func (that *fakeConn) ID() string { return that.id }

func (that *fakeConn) WriteText(data []byte) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.failWrites {
		return errWriteRefused
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	that.frames = append(that.frames, frame)

	return nil
}

func (that *fakeConn) Close(_ int, reason string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.closed = true
	that.closeReason = reason

	return nil
}

func (that *fakeConn) frameTypes() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	types := make([]string, 0, len(that.frames))
	for _, frame := range that.frames {
		if msgType, ok := frame["type"].(string); ok {
			types = append(types, msgType)
		}
	}

	return types
}

func (that *fakeConn) lastOfType(msgType string) (map[string]any, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i := len(that.frames) - 1; i >= 0; i-- {
		if that.frames[i]["type"] == msgType {
			return that.frames[i], true
		}
	}

	return nil, false
}

func (that *fakeConn) countOfType(msgType string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	var count int
	for _, frame := range that.frames {
		if frame["type"] == msgType {
			count++
		}
	}

	return count
}

func newTestManager(maxParticipants int, keepOnDisconnect bool) *RoomManager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewRoomManager(logger, registry.New(), maxParticipants, keepOnDisconnect)
}

// seatedRoom builds a room with the creator seated and a second player joined.
func seatedRoom(t *testing.T, rooms *RoomManager) (creator, joiner *fakeConn, gameID string) {
	t.Helper()

	creator = &fakeConn{id: "conn-1"}
	require.NoError(t, rooms.CreateRoom(creator, "p1", "Alice"))

	created, ok := creator.lastOfType("created")
	require.True(t, ok)
	gameID, _ = created["gameId"].(string)
	require.NotEmpty(t, gameID)

	joiner = &fakeConn{id: "conn-2"}
	require.NoError(t, rooms.JoinRoom(joiner, gameID, "p2", "Bob"))

	return creator, joiner, gameID
}

func TestRoomManager_CreateRoom(t *testing.T) {
	t.Run("Creator receives the room id and the X seat", func(t *testing.T) {
		// Given: a room manager and a fresh connection
		rooms := newTestManager(0, true)
		conn := &fakeConn{id: "conn-1"}

		// When: the connection creates a room
		require.NoError(t, rooms.CreateRoom(conn, "p1", "Alice"))

		// Then: the created reply carries a six-char id, waiting state and the seat
		created, ok := conn.lastOfType("created")
		require.True(t, ok)

		gameID, _ := created["gameId"].(string)
		assert.Len(t, gameID, registry.RoomIDLength)
		assert.Equal(t, "waiting", created["state"])
		assert.Equal(t, "p1", created["playerId"])

		players, ok := created["players"].(map[string]any)
		require.True(t, ok)
		player, ok := players["p1"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "X", player["symbol"])
	})

	t.Run("Connection already in a room cannot create another", func(t *testing.T) {
		// Given: a connection that already created a room
		rooms := newTestManager(0, true)
		conn := &fakeConn{id: "conn-1"}
		require.NoError(t, rooms.CreateRoom(conn, "p1", "Alice"))

		// When: the same connection creates again
		err := rooms.CreateRoom(conn, "p1", "Alice")

		// Then: the intent is rejected
		assert.ErrorIs(t, err, apperror.ErrAlreadyInGame)
	})
}

func TestRoomManager_JoinRoom(t *testing.T) {
	t.Run("Join against an unknown room fails", func(t *testing.T) {
		// Given: a room manager with no rooms
		rooms := newTestManager(0, true)

		// When: joining a room that does not exist
		err := rooms.JoinRoom(&fakeConn{id: "conn-1"}, "NOSUCH", "p2", "Bob")

		// Then: the intent is rejected
		assert.ErrorIs(t, err, apperror.ErrUnknownGame)
	})

	t.Run("Joiner is confirmed and the rest of the room notified", func(t *testing.T) {
		// Given/When: a created room that a second player joins
		rooms := newTestManager(0, true)
		creator, joiner, _ := seatedRoom(t, rooms)

		// Then: the joiner sees joined with play started
		joined, ok := joiner.lastOfType("joined")
		require.True(t, ok)
		assert.Equal(t, "in_progress", joined["state"])
		assert.Equal(t, "p1", joined["currentTurn"])

		// Then: the creator sees player_joined, the joiner does not
		notice, ok := creator.lastOfType("player_joined")
		require.True(t, ok)
		assert.Equal(t, "p2", notice["playerId"])
		assert.Equal(t, "Bob", notice["name"])
		assert.Zero(t, joiner.countOfType("player_joined"))
	})

	t.Run("Connection bound to another room cannot join", func(t *testing.T) {
		// Given: two rooms and a connection attached to the first
		rooms := newTestManager(0, true)
		creator, _, _ := seatedRoom(t, rooms)

		other := &fakeConn{id: "conn-3"}
		require.NoError(t, rooms.CreateRoom(other, "p3", "Carol"))
		otherCreated, ok := other.lastOfType("created")
		require.True(t, ok)

		// When: the first creator tries to join the second room
		err := rooms.JoinRoom(creator, otherCreated["gameId"].(string), "p1", "Alice")

		// Then: the intent is rejected
		assert.ErrorIs(t, err, apperror.ErrAlreadyInGame)
	})

	t.Run("Third participant joins as a spectator", func(t *testing.T) {
		// Given: a fully seated room
		rooms := newTestManager(0, true)
		_, _, gameID := seatedRoom(t, rooms)

		// When: a third player joins
		spectator := &fakeConn{id: "conn-3"}
		require.NoError(t, rooms.JoinRoom(spectator, gameID, "p3", "Carol"))

		// Then: they appear in the participant map with no symbol
		joined, ok := spectator.lastOfType("joined")
		require.True(t, ok)

		players, ok := joined["players"].(map[string]any)
		require.True(t, ok)
		require.Len(t, players, 3)
		third, ok := players["p3"].(map[string]any)
		require.True(t, ok)
		assert.NotContains(t, third, "symbol")
	})

	t.Run("Room at capacity rejects the joiner", func(t *testing.T) {
		// Given: a room capped at two participants
		rooms := newTestManager(2, true)
		_, _, gameID := seatedRoom(t, rooms)

		// When: a third player tries to join
		late := &fakeConn{id: "conn-3"}
		err := rooms.JoinRoom(late, gameID, "p3", "Carol")

		// Then: the join fails and the connection stays unbound
		assert.ErrorIs(t, err, apperror.ErrGameFull)
		assert.Empty(t, late.frameTypes())
	})
}

func TestRoomManager_SyncGame(t *testing.T) {
	t.Run("Sync returns the full snapshot to the sender only", func(t *testing.T) {
		// Given: a room with one move played
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)
		require.NoError(t, rooms.MakeTurn(creator, gameID, "p1", 0, 0))

		before := creator.countOfType("synced")

		// When: the joiner asks for a sync
		require.NoError(t, rooms.SyncGame(joiner, gameID, "p2"))

		// Then: the joiner gets the board as it stands, the creator nothing new
		synced, ok := joiner.lastOfType("synced")
		require.True(t, ok)

		board, ok := synced["board"].([]any)
		require.True(t, ok)
		require.Len(t, board, 9)
		assert.Equal(t, "X", board[0])
		assert.Equal(t, "p2", synced["currentTurn"])
		assert.Equal(t, before, creator.countOfType("synced"))
	})

	t.Run("Sync against an unknown room fails", func(t *testing.T) {
		rooms := newTestManager(0, true)

		err := rooms.SyncGame(&fakeConn{id: "conn-1"}, "NOSUCH", "p1")

		assert.ErrorIs(t, err, apperror.ErrUnknownGame)
	})
}

func TestRoomManager_Reconnect(t *testing.T) {
	t.Run("Unknown identity cannot reconnect", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		_, _, gameID := seatedRoom(t, rooms)

		// When: a never-seen identity reconnects
		err := rooms.Reconnect(&fakeConn{id: "conn-9"}, gameID, "ghost")

		// Then: the intent is rejected
		assert.ErrorIs(t, err, apperror.ErrNotParticipant)
	})

	t.Run("Dropped player resumes on a new connection without a duplicate seat", func(t *testing.T) {
		// Given: a seated room where the second player's transport dropped
		rooms := newTestManager(0, true)
		_, joiner, gameID := seatedRoom(t, rooms)
		rooms.Disconnect(joiner)

		// When: the player reconnects on a fresh connection
		fresh := &fakeConn{id: "conn-9"}
		require.NoError(t, rooms.Reconnect(fresh, gameID, "p2"))

		// Then: the reply restores their seat and the room has no extra entry
		frame, ok := fresh.lastOfType("reconnected")
		require.True(t, ok)
		assert.Equal(t, "O", frame["role"])
		assert.Equal(t, true, frame["reconnected"])

		players, ok := frame["players"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, players, 2)
	})

	t.Run("Reconnect displaces a stale connection still bound to the identity", func(t *testing.T) {
		// Given: a seated room with the joiner's original connection still live
		rooms := newTestManager(0, true)
		_, joiner, gameID := seatedRoom(t, rooms)

		// When: the same identity reconnects from elsewhere
		fresh := &fakeConn{id: "conn-9"}
		require.NoError(t, rooms.Reconnect(fresh, gameID, "p2"))

		// Then: the old connection is closed and no longer part of the room
		assert.True(t, joiner.closed)
		assert.Equal(t, "session resumed elsewhere", joiner.closeReason)
	})
}

func TestRoomManager_MakeTurn(t *testing.T) {
	t.Run("Winning line is announced to the whole room", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: p1 completes column 0
		script := []struct {
			conn     *fakeConn
			playerID string
			x, y     int
		}{
			{creator, "p1", 0, 0},
			{joiner, "p2", 1, 1},
			{creator, "p1", 0, 1},
			{joiner, "p2", 2, 2},
			{creator, "p1", 0, 2},
		}
		for _, step := range script {
			require.NoError(t, rooms.MakeTurn(step.conn, gameID, step.playerID, step.x, step.y))
		}

		// Then: both sides saw every move and the verdict
		for _, conn := range []*fakeConn{creator, joiner} {
			assert.Equal(t, 5, conn.countOfType("move"))

			over, ok := conn.lastOfType("game_over")
			require.True(t, ok)
			assert.Equal(t, "X", over["winner"])
			assert.Equal(t, "x_won", over["state"])
		}
	})

	t.Run("Draw is announced with the DRAW marker", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: the board fills with no line
		script := []struct {
			conn     *fakeConn
			playerID string
			x, y     int
		}{
			{creator, "p1", 0, 0},
			{joiner, "p2", 2, 0},
			{creator, "p1", 1, 0},
			{joiner, "p2", 0, 1},
			{creator, "p1", 2, 1},
			{joiner, "p2", 1, 1},
			{creator, "p1", 0, 2},
			{joiner, "p2", 1, 2},
			{creator, "p1", 2, 2},
		}
		for _, step := range script {
			require.NoError(t, rooms.MakeTurn(step.conn, gameID, step.playerID, step.x, step.y))
		}

		// Then: the verdict names no winner
		over, ok := joiner.lastOfType("game_over")
		require.True(t, ok)
		assert.Equal(t, "DRAW", over["winner"])
		assert.Equal(t, "draw", over["state"])
	})

	t.Run("Rejected move reaches nobody", func(t *testing.T) {
		// Given: a seated room with the turn on p1
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: p2 moves out of turn
		err := rooms.MakeTurn(joiner, gameID, "p2", 1, 1)

		// Then: the error goes back and no move frame was broadcast
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Zero(t, creator.countOfType("move"))
		assert.Zero(t, joiner.countOfType("move"))
	})

	t.Run("Empty ids fall back to the connection binding", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, _ := seatedRoom(t, rooms)

		// When: the creator moves without naming the game or themselves
		require.NoError(t, rooms.MakeTurn(creator, "", "", 1, 1))

		// Then: the move lands under the bound identity
		move, ok := joiner.lastOfType("move")
		require.True(t, ok)
		assert.Equal(t, "p1", move["playerId"])
	})

	t.Run("Unbound connection with no ids cannot move", func(t *testing.T) {
		rooms := newTestManager(0, true)

		err := rooms.MakeTurn(&fakeConn{id: "conn-9"}, "", "", 0, 0)

		assert.ErrorIs(t, err, apperror.ErrMissingField)
	})

	t.Run("Connection attached elsewhere cannot move in a room", func(t *testing.T) {
		// Given: a seated room and an unrelated connection
		rooms := newTestManager(0, true)
		_, _, gameID := seatedRoom(t, rooms)

		// When: the outsider names the room explicitly
		err := rooms.MakeTurn(&fakeConn{id: "conn-9"}, gameID, "p1", 0, 0)

		// Then: the move is rejected
		assert.ErrorIs(t, err, apperror.ErrNotParticipant)
	})

	t.Run("One failing peer does not block delivery to the rest", func(t *testing.T) {
		// Given: a seated room whose creator connection refuses writes
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)
		creator.failWrites = true

		// When: p1 moves
		require.NoError(t, rooms.MakeTurn(creator, gameID, "p1", 0, 0))

		// Then: the joiner still receives the move
		move, ok := joiner.lastOfType("move")
		require.True(t, ok)
		assert.Equal(t, "p2", move["nextTurn"])
	})
}

func TestRoomManager_LeaveRoom(t *testing.T) {
	t.Run("Leaver is acknowledged and the room told", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: the joiner leaves
		require.NoError(t, rooms.LeaveRoom(joiner, gameID, "p2"))

		// Then: the creator sees player_left, the leaver gets the ack,
		// and the room survives with one connection still attached
		left, ok := creator.lastOfType("player_left")
		require.True(t, ok)
		assert.Equal(t, "p2", left["playerId"])
		assert.Equal(t, "waiting", left["state"])

		ack, ok := joiner.lastOfType("left")
		require.True(t, ok)
		assert.Equal(t, gameID, ack["gameId"])

		assert.NoError(t, rooms.SyncGame(creator, gameID, "p1"))
	})

	t.Run("Room is evicted once the last connection leaves", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: both players leave
		require.NoError(t, rooms.LeaveRoom(joiner, gameID, "p2"))
		require.NoError(t, rooms.LeaveRoom(creator, gameID, "p1"))

		// Then: the room is gone
		err := rooms.SyncGame(&fakeConn{id: "conn-9"}, gameID, "p1")
		assert.ErrorIs(t, err, apperror.ErrUnknownGame)
	})
}

func TestRoomManager_CloseRoom(t *testing.T) {
	t.Run("Only the bound identity may close the room", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		_, joiner, gameID := seatedRoom(t, rooms)

		// When: the joiner claims the creator's identity
		err := rooms.CloseRoom(joiner, gameID, "p1")

		// Then: the close is rejected
		assert.ErrorIs(t, err, apperror.ErrNotAuthorized)
	})

	t.Run("Close kicks every peer and evicts the room", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: the creator closes it
		require.NoError(t, rooms.CloseRoom(creator, gameID, "p1"))

		// Then: the peer was told and hung up, the closer acknowledged but kept open
		_, ok := joiner.lastOfType("room_closed")
		assert.True(t, ok)
		assert.True(t, joiner.closed)
		assert.Equal(t, "room closed by owner", joiner.closeReason)

		_, ok = creator.lastOfType("closed")
		assert.True(t, ok)
		assert.False(t, creator.closed)

		err := rooms.SyncGame(&fakeConn{id: "conn-9"}, gameID, "p1")
		assert.ErrorIs(t, err, apperror.ErrUnknownGame)
	})
}

func TestRoomManager_StartGame(t *testing.T) {
	t.Run("Start resets the board and announces the first turn", func(t *testing.T) {
		// Given: a seated room with a finished match
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)
		script := []struct {
			conn     *fakeConn
			playerID string
			x, y     int
		}{
			{creator, "p1", 0, 0},
			{joiner, "p2", 1, 1},
			{creator, "p1", 0, 1},
			{joiner, "p2", 2, 2},
			{creator, "p1", 0, 2},
		}
		for _, step := range script {
			require.NoError(t, rooms.MakeTurn(step.conn, gameID, step.playerID, step.x, step.y))
		}

		// When: the creator starts a new match
		require.NoError(t, rooms.StartGame(creator, gameID, "p1", true))

		// Then: both sides see a blank in-progress board with p1 to move
		for _, conn := range []*fakeConn{creator, joiner} {
			started, ok := conn.lastOfType("game_started")
			require.True(t, ok)
			assert.Equal(t, "in_progress", started["state"])
			assert.Equal(t, "p1", started["startPlayerId"])
			assert.Equal(t, "p1", started["startedBy"])

			board, ok := started["board"].([]any)
			require.True(t, ok)
			for _, cell := range board {
				assert.Equal(t, "", cell)
			}
		}
	})

	t.Run("Opponent starts when the requester defers the first turn", func(t *testing.T) {
		// Given: a seated room
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: the creator starts with creatorStarts false
		require.NoError(t, rooms.StartGame(creator, gameID, "p1", false))

		// Then: the other seat holder moves first
		started, ok := joiner.lastOfType("game_started")
		require.True(t, ok)
		assert.Equal(t, "p2", started["startPlayerId"])
	})

	t.Run("Only the bound identity may start", func(t *testing.T) {
		rooms := newTestManager(0, true)
		_, joiner, gameID := seatedRoom(t, rooms)

		err := rooms.StartGame(joiner, gameID, "p1", true)

		assert.ErrorIs(t, err, apperror.ErrNotAuthorized)
	})
}

func TestRoomManager_Disconnect(t *testing.T) {
	t.Run("With retention the seat survives the disconnect", func(t *testing.T) {
		// Given: a seated room with retention on
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: the joiner's transport drops
		rooms.Disconnect(joiner)

		// Then: the room hears about the drop but keeps both participants
		dropped, ok := creator.lastOfType("player_disconnected")
		require.True(t, ok)
		assert.Equal(t, "p2", dropped["playerId"])

		players, ok := dropped["players"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, players, 2)
		assert.Equal(t, "in_progress", dropped["state"])

		// Then: the room survives for a later reconnect
		assert.NoError(t, rooms.SyncGame(creator, gameID, "p1"))
	})

	t.Run("With retention the room outlives its last connection", func(t *testing.T) {
		// Given: a seated room with retention on
		rooms := newTestManager(0, true)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: both transports drop
		rooms.Disconnect(joiner)
		rooms.Disconnect(creator)

		// Then: the room is still there and the players may resume
		fresh := &fakeConn{id: "conn-9"}
		assert.NoError(t, rooms.Reconnect(fresh, gameID, "p1"))
	})

	t.Run("Without retention a disconnect behaves like a leave", func(t *testing.T) {
		// Given: a seated room with retention off
		rooms := newTestManager(0, false)
		creator, joiner, _ := seatedRoom(t, rooms)

		// When: the joiner's transport drops
		rooms.Disconnect(joiner)

		// Then: the participant is removed and the room regresses to waiting
		left, ok := creator.lastOfType("player_left")
		require.True(t, ok)
		assert.Equal(t, "p2", left["playerId"])
		assert.Equal(t, "waiting", left["state"])

		players, ok := left["players"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, players, 1)
	})

	t.Run("Without retention the room is evicted with its last connection", func(t *testing.T) {
		// Given: a seated room with retention off
		rooms := newTestManager(0, false)
		creator, joiner, gameID := seatedRoom(t, rooms)

		// When: both transports drop
		rooms.Disconnect(joiner)
		rooms.Disconnect(creator)

		// Then: the room is gone
		err := rooms.SyncGame(&fakeConn{id: "conn-9"}, gameID, "p1")
		assert.ErrorIs(t, err, apperror.ErrUnknownGame)
	})

	t.Run("Disconnect of an unbound connection is a no-op", func(t *testing.T) {
		rooms := newTestManager(0, true)

		rooms.Disconnect(&fakeConn{id: "conn-9"})
	})
}
