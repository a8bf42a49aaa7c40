// Package transport defines the wire-framing seam between
// internal/protocol's encoded messages and an actual network connection.
// Building the WebSocket accept loop and full connection lifecycle is an
// explicit Non-goal (spec §1) — this package only wires the dependency
// the rest of the system would call into (github.com/coder/websocket),
// so that internal/broker and a future cmd/agent/cmd/broker wiring layer
// have a real type to depend on instead of a bare net.Conn.
package transport

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Conn is one framed, message-oriented connection: Send/Receive move whole
// JSON-encoded protocol messages (internal/protocol's Encode*/Decode*
// functions produce and consume exactly the []byte this interface passes
// around), never partial frames — the WebSocket layer underneath already
// does the framing internal/protocol doesn't have to.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close(reason string) error
}

// wsConn adapts a *websocket.Conn to Conn, sending and receiving whole
// text frames (one JSON-encoded protocol message per frame).
type wsConn struct {
	conn *websocket.Conn
}

// NewConn wraps an already-established *websocket.Conn (from either
// websocket.Accept on the broker side or websocket.Dial on the agent
// side) as a Conn. Establishing that underlying connection — the HTTP
// upgrade handshake and accept loop — is outside this package's scope.
func NewConn(c *websocket.Conn) Conn {
	return &wsConn{conn: c}
}

func (w *wsConn) Send(ctx context.Context, payload []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}

	return nil
}

func (w *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, payload, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: receive: %w", err)
	}

	return payload, nil
}

func (w *wsConn) Close(reason string) error {
	if err := w.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}

	return nil
}
