package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"xo-backend/internal/apperror"
	"xo-backend/internal/registry"
)

type roomManager interface {
	CreateRoom(conn registry.Connection, playerID, name string) error
	JoinRoom(conn registry.Connection, gameID, playerID, name string) error
	SyncGame(conn registry.Connection, gameID, playerID string) error
	Reconnect(conn registry.Connection, gameID, playerID string) error
	MakeTurn(conn registry.Connection, gameID, playerID string, x, y int) error
	LeaveRoom(conn registry.Connection, gameID, playerID string) error
	CloseRoom(conn registry.Connection, gameID, playerID string) error
	StartGame(conn registry.Connection, gameID, playerID string, creatorStarts bool) error
	Disconnect(conn registry.Connection)
}

type Server struct {
	logger *slog.Logger
	rooms  roomManager

	upgrader websocket.Upgrader
	handlers map[string]func(conn *client, msg *Message) error
}

func New(logger *slog.Logger, rooms roomManager) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		rooms:  rooms,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		handlers: make(map[string]func(*client, *Message) error),
	}

	server.handlers["create"] = server.handleCreate
	server.handlers["join"] = server.handleJoin
	server.handlers["sync"] = server.handleSync
	server.handlers["reconnect"] = server.handleReconnect
	server.handlers["move"] = server.handleMove
	server.handlers["leave"] = server.handleLeave
	server.handlers["close"] = server.handleClose
	server.handlers["start"] = server.handleStart

	return server
}

// Start - starts the WebSocket server and blocks until the context is
// canceled or the listener fails.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.handleUpgrade)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// handleUpgrade - upgrades the connection and runs its read loop.
func (that *Server) handleUpgrade(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "handleUpgrade")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	connection := newClient(conn)
	log.Info("WebSocket connection established", "connID", connection.ID())

	that.sendWelcome(connection)
	that.readLoop(connection)
}

// readLoop - processes messages from one client until the connection drops.
// A failing or malformed message only ever answers the sender; it cannot
// take down the loop or touch other connections.
func (that *Server) readLoop(connection *client) {
	log := that.logger.With("method", "readLoop", "connID", connection.ID())

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("recovered from panic", "panic", rec)
		}

		that.rooms.Disconnect(connection)
		_ = connection.conn.Close()

		log.Info("connection closed")
	}()

	for {
		msgType, data, err := connection.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("connection closed unexpectedly", "error", err)
			}

			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err = json.Unmarshal(data, &msg); err != nil {
			that.sendError(connection, apperror.ErrMalformedMessage)
			continue
		}

		handler, ok := that.handlers[msg.Type]
		if !ok {
			that.sendError(connection, fmt.Errorf("type %q: %w", msg.Type, apperror.ErrMalformedMessage))
			continue
		}

		if err = handler(connection, &msg); err != nil {
			log.Warn("message rejected", "type", msg.Type, "error", err)
			that.sendError(connection, err)
		}
	}
}

func (that *Server) sendWelcome(connection *client) {
	data, err := json.Marshal(welcomePayload{Type: "welcome", Message: "connected"})
	if err != nil {
		return
	}

	if err = connection.WriteText(data); err != nil {
		that.logger.Warn("failed to send welcome", "connID", connection.ID(), "error", err)
	}
}

// sendError - relays a typed failure to the sender only.
func (that *Server) sendError(connection *client, cause error) {
	payload := errorPayload{
		Type:    "error",
		Code:    apperror.Code(cause),
		Message: cause.Error(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if err = connection.WriteText(data); err != nil {
		that.logger.Warn("failed to send error response", "connID", connection.ID(), "error", err)
	}
}
