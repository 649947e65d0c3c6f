package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// client wraps one gorilla connection behind the registry's Connection
// interface. Gorilla connections allow a single concurrent writer, so all
// writes go through the client's mutex.
type client struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (that *client) ID() string {
	return that.id
}

func (that *client) WriteText(data []byte) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) Close(code int, reason string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	message := websocket.FormatCloseMessage(code, reason)

	// best effort close frame; the hard close below is what matters
	_ = that.conn.WriteControl(websocket.CloseMessage, message, deadline)

	if err := that.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	return nil
}
