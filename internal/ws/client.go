package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voice-relay/backend/internal/model"
)

// Frame is one outbound WebSocket data frame.
type Frame struct {
	Type model.FrameType
	Data []byte
}

// Client represents a WebSocket client connection.
type Client struct {
	id          string
	conn        *websocket.Conn
	remote      string
	connectedAt time.Time
	send        chan Frame

	mu       sync.Mutex
	closed   bool
	identity string
	declared bool
}

// NewClient creates a new client with an outbound queue of bufferSize frames.
// conn may be nil in tests that only inspect the queue.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	c := &Client{
		id:          uuid.New().String(),
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan Frame, bufferSize),
	}
	if conn != nil {
		c.remote = conn.RemoteAddr().String()
	}
	return c
}

// ID returns the registry handle of the client.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string {
	return c.remote
}

// ConnectedAt returns when the connection was accepted.
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Identity returns the declared identity, or "" for anonymous clients.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// State reports where the client is in connected → identified → closed.
func (c *Client) State() model.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return model.ConnectionStatusClosed
	case c.identity != "":
		return model.ConnectionStatusIdentified
	default:
		return model.ConnectionStatusConnected
	}
}

func (c *Client) setIdentity(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity != "" {
		return model.ErrIdentityAlreadySet
	}
	c.identity = identity
	return nil
}

// consumeDeclaration reports whether this is the first frame of the
// connection and marks the declaration slot as used.
func (c *Client) consumeDeclaration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declared {
		return false
	}
	c.declared = true
	return true
}

// Send queues a frame for the write pump.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrClientClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		// Buffer full, close the client
		c.closeLocked()
		return model.ErrSendBufferFull
	}
}

// Close closes the client's outbound queue. The write pump then closes the
// connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan Frame {
	return c.send
}
