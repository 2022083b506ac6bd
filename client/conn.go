package client

import (
	"context"

	"github.com/coder/websocket"
)

// Conn abstracts the websocket connection so the agent can be tested without
// a real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens one physical connection. Implementations should honor ctx
// cancellation; the agent waits for an in-flight dial to resolve on shutdown
// so the connection it may return can be closed.
type DialFunc func(ctx context.Context) (Conn, error)

// WebsocketDialer returns the default DialFunc for a ws:// or wss:// URL.
func WebsocketDialer(url string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(maxInboundBytes)
		return conn, nil
	}
}
