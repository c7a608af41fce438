package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voice-relay/backend/internal/model"
	"github.com/voice-relay/backend/internal/ws"
)

// ConnectionLister reads the connection journal.
type ConnectionLister interface {
	List(ctx context.Context, hub string, limit int) ([]*model.ConnectionRecord, error)
}

// ClientsHandler reports on the clients of one hub.
type ClientsHandler struct {
	hub     *ws.Hub
	journal ConnectionLister
}

// NewClientsHandler creates a ClientsHandler. journal may be nil.
func NewClientsHandler(hub *ws.Hub, journal ConnectionLister) *ClientsHandler {
	return &ClientsHandler{hub: hub, journal: journal}
}

// ClientResponse represents a live client in API responses.
type ClientResponse struct {
	ID          string `json:"id"`
	RemoteAddr  string `json:"remoteAddr"`
	Identity    string `json:"identity,omitempty"`
	State       string `json:"state"`
	ConnectedAt string `json:"connectedAt"`
}

// HubResponse summarizes the hub and its live clients.
type HubResponse struct {
	Hub        string           `json:"hub"`
	Policy     string           `json:"policy"`
	Count      int              `json:"count"`
	Identified int              `json:"identified"`
	Clients    []ClientResponse `json:"clients"`
}

// Health handles GET /health.
func (h *ClientsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"hub":     h.hub.Name(),
		"clients": h.hub.ClientCount(),
	})
}

// List handles GET /api/clients - lists live clients.
func (h *ClientsHandler) List(c *gin.Context) {
	reg := h.hub.Registry()
	snapshot := reg.Snapshot()

	resp := HubResponse{
		Hub:        h.hub.Name(),
		Policy:     h.hub.Policy().Name(),
		Count:      len(snapshot),
		Identified: reg.Identified(),
		Clients:    make([]ClientResponse, 0, len(snapshot)),
	}
	for _, client := range snapshot {
		resp.Clients = append(resp.Clients, ClientResponse{
			ID:          client.ID(),
			RemoteAddr:  client.RemoteAddr(),
			Identity:    client.Identity(),
			State:       string(client.State()),
			ConnectedAt: client.ConnectedAt().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, resp)
}

// Connections handles GET /api/connections - lists journal records.
func (h *ClientsHandler) Connections(c *gin.Context) {
	if h.journal == nil {
		sendError(c, http.StatusNotFound, "JOURNAL_DISABLED", model.ErrJournalDisabled.Error())
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.journal.List(c.Request.Context(), h.hub.Name(), limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list connections: "+err.Error())
		return
	}
	if records == nil {
		records = []*model.ConnectionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": records,
		"total":       len(records),
	})
}

// RegisterRoutes registers the reporting routes.
func (h *ClientsHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/api/clients", h.List)
	r.GET("/api/connections", h.Connections)
}
