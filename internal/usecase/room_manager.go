package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"xo-backend/internal/apperror"
	"xo-backend/internal/entity"
	"xo-backend/internal/registry"
)

const closeCodeNormal = 1000

// RoomManager coordinates rooms, participants and connections: it applies
// each inbound intent to the game state and pushes the resulting snapshots
// to the room. Errors are returned to the transport, which relays them to
// the sender only; success-path sends and broadcasts happen here.
type RoomManager struct {
	logger   *slog.Logger
	registry *registry.Registry

	maxParticipants  int
	keepOnDisconnect bool
}

// NewRoomManager - maxParticipants caps seats plus spectators per room
// (non-positive means unlimited); keepOnDisconnect retains participants
// across transport-level disconnects so they can reconnect.
func NewRoomManager(logger *slog.Logger, reg *registry.Registry, maxParticipants int, keepOnDisconnect bool) *RoomManager {
	return &RoomManager{
		logger:   logger.With("component", "rooms"),
		registry: reg,

		maxParticipants:  maxParticipants,
		keepOnDisconnect: keepOnDisconnect,
	}
}

// CreateRoom - allocates a room, seats the creator and replies with the
// created snapshot carrying the new room id.
func (that *RoomManager) CreateRoom(conn registry.Connection, playerID, name string) error {
	log := that.logger.With("method", "CreateRoom")

	if roomID, _, ok := that.registry.Binding(conn); ok {
		return fmt.Errorf("connection is bound to game %s: %w", roomID, apperror.ErrAlreadyInGame)
	}

	game := that.registry.CreateGame()
	that.registry.Attach(conn, game.ID(), playerID)

	snap, err := game.AddPlayer(playerID, name, that.maxParticipants)
	if err != nil {
		// a fresh room cannot be full; unwind the allocation anyway
		that.registry.Detach(conn)
		that.registry.RemoveGame(game.ID())

		return fmt.Errorf("failed to seat creator: %w", err)
	}

	that.send(conn, statePayload("created", snap, map[string]any{"playerId": playerID}))

	log.Info("room created", "gameID", game.ID(), "playerID", playerID)

	return nil
}

// JoinRoom - admits a participant into an existing room and tells the rest
// of the room about them.
func (that *RoomManager) JoinRoom(conn registry.Connection, gameID, playerID, name string) error {
	log := that.logger.With("method", "JoinRoom", "gameID", gameID, "playerID", playerID)

	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	if roomID, _, bound := that.registry.Binding(conn); bound && roomID != gameID {
		return fmt.Errorf("connection is bound to game %s: %w", roomID, apperror.ErrAlreadyInGame)
	}

	// capacity check and seat assignment are one critical section inside
	// AddPlayer, so two racing joiners cannot both take the last slot
	snap, err := game.AddPlayer(playerID, name, that.maxParticipants)
	if err != nil {
		return fmt.Errorf("game %s: %w", gameID, err)
	}

	that.registry.Attach(conn, gameID, playerID)

	that.send(conn, statePayload("joined", snap, map[string]any{"playerId": playerID}))
	that.broadcast(gameID, statePayload("player_joined", snap, map[string]any{"playerId": playerID, "name": name}), conn)

	log.Info("player joined game")

	return nil
}

// SyncGame - replies to the sender with a full snapshot of the room.
func (that *RoomManager) SyncGame(conn registry.Connection, gameID, playerID string) error {
	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	that.send(conn, statePayload("synced", game.Snapshot(), map[string]any{"playerId": playerID}))

	return nil
}

// Reconnect - rebinds a prior participant to a new connection, displacing
// any stale connection still registered under that identity. The participant
// entry in the game is left untouched.
func (that *RoomManager) Reconnect(conn registry.Connection, gameID, playerID string) error {
	log := that.logger.With("method", "Reconnect", "gameID", gameID, "playerID", playerID)

	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	if !game.HasParticipant(playerID) {
		return fmt.Errorf("player %s: %w", playerID, apperror.ErrNotParticipant)
	}

	if stale, ok := that.registry.ConnectionFor(gameID, playerID); ok && stale.ID() != conn.ID() {
		that.registry.Detach(stale)

		if err := stale.Close(closeCodeNormal, "session resumed elsewhere"); err != nil {
			log.Warn("failed to close stale connection", "connID", stale.ID(), "error", err)
		}
	}

	that.registry.Attach(conn, gameID, playerID)

	snap := game.Snapshot()

	role := "spectator"
	if player, ok := snap.Players[playerID]; ok && player.IsSeated() {
		role = player.Symbol
	}

	that.send(conn, statePayload("reconnected", snap, map[string]any{
		"playerId":    playerID,
		"role":        role,
		"reconnected": true,
	}))

	log.Info("player reconnected")

	return nil
}

// MakeTurn - applies one move and broadcasts it to the whole room, followed
// by game_over when the move ends the match. Empty gameID/playerID fall back
// to the connection's current binding.
func (that *RoomManager) MakeTurn(conn registry.Connection, gameID, playerID string, x, y int) error {
	log := that.logger.With("method", "MakeTurn")

	boundRoom, boundPlayer, bound := that.registry.Binding(conn)
	if gameID == "" {
		gameID = boundRoom
	}
	if playerID == "" {
		playerID = boundPlayer
	}

	if gameID == "" || playerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	if !bound || boundRoom != gameID {
		return fmt.Errorf("connection is not attached to game %s: %w", gameID, apperror.ErrNotParticipant)
	}

	move := entity.Move{X: x, Y: y, PlayerID: playerID, Timestamp: time.Now().UnixMilli()}

	result, snap, err := game.ApplyMove(move)
	if err != nil {
		return fmt.Errorf("game %s: %w", gameID, err)
	}

	that.broadcast(gameID, statePayload("move", snap, map[string]any{
		"playerId": playerID,
		"x":        x,
		"y":        y,
		"nextTurn": result.NextTurn,
	}), nil)

	if result.Winner != "" || result.Draw {
		winner := result.Winner
		if result.Draw {
			winner = "DRAW"
		}

		// keep the game around so the owner may start a new match
		that.broadcast(gameID, statePayload("game_over", snap, map[string]any{"winner": winner}), nil)
	}

	log.Info("move applied", "gameID", gameID, "playerID", playerID, "x", x, "y", y)

	return nil
}

// LeaveRoom - removes the participant from the game, detaches the
// connection and evicts the room once its connection set is empty.
func (that *RoomManager) LeaveRoom(conn registry.Connection, gameID, playerID string) error {
	log := that.logger.With("method", "LeaveRoom", "gameID", gameID, "playerID", playerID)

	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	that.registry.Detach(conn)
	snap, _ := game.RemovePlayer(playerID)

	that.broadcast(gameID, statePayload("player_left", snap, map[string]any{"playerId": playerID}), nil)

	if that.registry.RoomIsEmpty(gameID) {
		that.registry.RemoveGame(gameID)
		log.Info("removed empty game")
	}

	that.send(conn, map[string]any{"type": "left", "gameId": gameID, "playerId": playerID})

	log.Info("player left game")

	return nil
}

// CloseRoom - tears the room down immediately: every peer gets room_closed
// plus an explicit close frame, and the room is evicted regardless of who
// is still attached. Only the identity bound to the sending connection may
// close the room under its own name.
func (that *RoomManager) CloseRoom(conn registry.Connection, gameID, playerID string) error {
	log := that.logger.With("method", "CloseRoom", "gameID", gameID, "playerID", playerID)

	if _, ok := that.registry.Game(gameID); !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	_, boundPlayer, bound := that.registry.Binding(conn)
	if !bound || boundPlayer != playerID {
		return fmt.Errorf("close of game %s by %s: %w", gameID, playerID, apperror.ErrNotAuthorized)
	}

	that.broadcast(gameID, map[string]any{"type": "room_closed", "gameId": gameID}, nil)

	for _, peer := range that.registry.Connections(gameID) {
		if peer.ID() == conn.ID() {
			continue
		}

		if err := peer.Close(closeCodeNormal, "room closed by owner"); err != nil {
			log.Warn("failed to close peer connection", "connID", peer.ID(), "error", err)
		}
	}

	that.registry.RemoveGame(gameID)

	that.send(conn, map[string]any{"type": "closed", "gameId": gameID, "playerId": playerID})

	log.Info("room closed")

	return nil
}

// StartGame - resets the board for a new match and picks the first turn
// holder: the requester, or the other seated player when creatorStarts is
// false.
func (that *RoomManager) StartGame(conn registry.Connection, gameID, playerID string, creatorStarts bool) error {
	log := that.logger.With("method", "StartGame", "gameID", gameID, "playerID", playerID)

	game, ok := that.registry.Game(gameID)
	if !ok {
		return fmt.Errorf("game %s: %w", gameID, apperror.ErrUnknownGame)
	}

	_, boundPlayer, bound := that.registry.Binding(conn)
	if !bound || boundPlayer != playerID {
		return fmt.Errorf("start of game %s by %s: %w", gameID, playerID, apperror.ErrNotAuthorized)
	}

	starter := playerID
	if !creatorStarts {
		if other := game.OtherSeatHolder(playerID); other != "" {
			starter = other
		}
	}

	snap := game.Restart(starter)

	that.broadcast(gameID, statePayload("game_started", snap, map[string]any{
		"startedBy":     playerID,
		"startPlayerId": starter,
	}), nil)

	log.Info("game started", "startPlayerID", starter)

	return nil
}

// Disconnect - handles a transport-level close. With keepOnDisconnect the
// participant stays in the game for a later reconnect and the room only
// learns the player dropped; the room is evicted once both its connection
// set and participant set are empty. Without it, a disconnect behaves like
// an explicit leave.
func (that *RoomManager) Disconnect(conn registry.Connection) {
	log := that.logger.With("method", "Disconnect")

	roomID, playerID := that.registry.Detach(conn)
	if roomID == "" {
		return
	}

	game, ok := that.registry.Game(roomID)
	if !ok {
		return
	}

	log = log.With("gameID", roomID, "playerID", playerID)

	if that.keepOnDisconnect {
		snap := game.Snapshot()

		that.broadcast(roomID, statePayload("player_disconnected", snap, map[string]any{"playerId": playerID}), nil)

		if that.registry.RoomIsEmpty(roomID) && len(snap.Players) == 0 {
			that.registry.RemoveGame(roomID)
			log.Info("removed empty game")
		}

		log.Info("player disconnected, participant retained")

		return
	}

	snap, _ := game.RemovePlayer(playerID)

	that.broadcast(roomID, statePayload("player_left", snap, map[string]any{"playerId": playerID}), nil)

	if that.registry.RoomIsEmpty(roomID) {
		that.registry.RemoveGame(roomID)
		log.Info("removed empty game")
	}

	log.Info("player disconnected")
}
