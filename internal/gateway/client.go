package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/liverelay/internal/protocol"
)

// ErrClientClosed is returned when writing to a closed client connection.
var ErrClientClosed = errors.New("client connection closed")

// Client wraps one accepted WebSocket connection. It satisfies the
// session layer's ClientConn contract; writes are serialized.
type Client struct {
	socket      *websocket.Conn
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a freshly upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{socket: conn, connectedAt: time.Now()}
}

// Send writes one frame to the client. Thread-safe.
func (c *Client) Send(frame protocol.ServerFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.socket.WriteJSON(frame)
}

// ReadMessage reads the next raw frame off the socket.
func (c *Client) ReadMessage() ([]byte, error) {
	_, data, err := c.socket.ReadMessage()
	return data, err
}

// Close closes the connection after a best-effort close frame. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.socket.Close()
}
