package conn

import (
	"context"

	"github.com/coder/websocket"
)

// Socket is the minimal transport surface the manager needs. The
// production implementation wraps a WebSocket; tests substitute their
// own.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a Socket to the given URL.
type Dialer func(ctx context.Context, url string) (Socket, error)

// DialWebSocket is the default Dialer.
func DialWebSocket(ctx context.Context, url string) (Socket, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsSocket{c: c}, nil
}

type wsSocket struct {
	c *websocket.Conn
}

func (s *wsSocket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.c.Read(ctx)
	return data, err
}

func (s *wsSocket) Write(ctx context.Context, data []byte) error {
	return s.c.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close(code websocket.StatusCode, reason string) error {
	return s.c.Close(code, reason)
}
