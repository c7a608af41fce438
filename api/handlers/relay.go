package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/voice-relay/backend/internal/ws"
)

// RelayHandler accepts relay WebSocket connections.
type RelayHandler struct {
	wsHandler *ws.Handler
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(wsHandler *ws.Handler) *RelayHandler {
	return &RelayHandler{wsHandler: wsHandler}
}

// Attach handles WS / - upgrades and joins the hub. The upgrader writes its
// own HTTP error when the handshake is invalid.
func (h *RelayHandler) Attach(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		_ = c.Error(err)
	}
}

// RegisterRoutes registers the WebSocket accept routes. Clients connect to
// the root path; /ws is an alias for reverse proxies.
func (h *RelayHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Attach)
	r.GET("/ws", h.Attach)
}
