package websocket

import (
	"fmt"

	"xo-backend/internal/apperror"
)

func (that *Server) handleCreate(conn *client, msg *Message) error {
	if msg.PlayerID == "" {
		return fmt.Errorf("playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.CreateRoom(conn, msg.PlayerID, msg.Name)
}

func (that *Server) handleJoin(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.JoinRoom(conn, msg.GameID, msg.PlayerID, msg.Name)
}

func (that *Server) handleSync(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.SyncGame(conn, msg.GameID, msg.PlayerID)
}

func (that *Server) handleReconnect(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.Reconnect(conn, msg.GameID, msg.PlayerID)
}

// handleMove - gameId and playerId may be omitted; the room manager falls
// back to the connection's current binding.
func (that *Server) handleMove(conn *client, msg *Message) error {
	if msg.X == nil || msg.Y == nil {
		return fmt.Errorf("x and y: %w", apperror.ErrMissingField)
	}

	return that.rooms.MakeTurn(conn, msg.GameID, msg.PlayerID, *msg.X, *msg.Y)
}

func (that *Server) handleLeave(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.LeaveRoom(conn, msg.GameID, msg.PlayerID)
}

func (that *Server) handleClose(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	return that.rooms.CloseRoom(conn, msg.GameID, msg.PlayerID)
}

func (that *Server) handleStart(conn *client, msg *Message) error {
	if msg.GameID == "" || msg.PlayerID == "" {
		return fmt.Errorf("gameId and playerId: %w", apperror.ErrMissingField)
	}

	creatorStarts := true
	if msg.CreatorStarts != nil {
		creatorStarts = *msg.CreatorStarts
	}

	return that.rooms.StartGame(conn, msg.GameID, msg.PlayerID, creatorStarts)
}
