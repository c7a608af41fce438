package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voice-relay/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer. Audio chunks are large.
	defaultMaxMessageSize = 1 << 20
)

// HandlerOptions tunes the per-connection pumps.
type HandlerOptions struct {
	MaxMessageSize int64
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
}

func (o *HandlerOptions) applyDefaults() {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
}

// Handler upgrades HTTP requests and runs the read and write pumps of each
// accepted connection.
type Handler struct {
	hub      *Hub
	opts     HandlerOptions
	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewHandler creates a new WebSocket handler for hub.
func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	opts.applyDefaults()
	return &Handler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Any origin may connect; the relay has no authentication.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Hub returns the hub the handler feeds.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// HandleConnection upgrades the request, registers the client and starts its
// pumps. It returns once the pumps are running. After Close it refuses new
// connections with model.ErrHubClosed.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	if h.isClosing() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return model.ErrHubClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	// Register and wg.Add run under mu, so a client is either visible to the
	// hub snapshot taken after Close or rejected here.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub shutting down"),
			time.Now().Add(h.opts.WriteWait))
		conn.Close()
		return model.ErrHubClosed
	}

	client := NewClient(conn, h.opts.SendBufferSize)
	h.hub.Register(client)

	h.wg.Add(2)
	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// Close stops accepting connections. Clients already registered are left to
// Hub.Close.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
}

func (h *Handler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// Wait blocks until every pump started by this handler has exited. Call it
// after Close.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// readPump pumps frames from the connection into the hub, in order.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn().Close()
		h.wg.Done()
	}()

	conn := client.Conn()
	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.hub.clientLogger(client).WithError(model.NewTransportError("read", client.RemoteAddr(), err)).Warn("connection error")
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))

		h.hub.HandleFrame(client, frameType(messageType), data)
	}
}

// writePump pumps queued frames from the hub to the connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	conn := client.Conn()
	defer func() {
		ticker.Stop()
		conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case frame, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				// The hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := conn.WriteMessage(messageType(frame.Type), frame.Data); err != nil {
				h.hub.clientLogger(client).WithError(model.NewTransportError("write", client.RemoteAddr(), err)).Debug("write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func frameType(messageType int) model.FrameType {
	if messageType == websocket.BinaryMessage {
		return model.FrameBinary
	}
	return model.FrameText
}

func messageType(frame model.FrameType) int {
	if frame == model.FrameBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
