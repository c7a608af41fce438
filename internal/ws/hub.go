package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/envelope"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/model"
	"github.com/voice-relay/backend/internal/routing"
)

const journalTimeout = 5 * time.Second

// Journal records connection lifecycle events. It never sees payloads.
type Journal interface {
	Create(ctx context.Context, rec *model.ConnectionRecord) error
	SetIdentity(ctx context.Context, id, identity string) error
	MarkClosed(ctx context.Context, id string, closedAt time.Time) error
}

// HubOptions configures a Hub.
type HubOptions struct {
	Name    string
	Policy  routing.Policy
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Journal Journal
}

// Hub classifies inbound frames and delivers them according to its
// routing policy.
type Hub struct {
	name     string
	registry *Registry
	policy   routing.Policy
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
	journal  Journal
}

// NewHub creates a Hub. A nil policy means broadcast.
func NewHub(opts HubOptions) *Hub {
	if opts.Policy == nil {
		opts.Policy = routing.Broadcast{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	return &Hub{
		name:     opts.Name,
		registry: NewRegistry(),
		policy:   opts.Policy,
		logger:   opts.Logger.WithField("hub", opts.Name),
		metrics:  opts.Metrics,
		journal:  opts.Journal,
	}
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

// Policy returns the routing policy.
func (h *Hub) Policy() routing.Policy {
	return h.policy
}

// Registry returns the hub's client registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.registry.Add(client)
	h.metrics.ActiveConnections.WithLabelValues(h.name).Inc()
	h.clientLogger(client).Info("client registered")

	if h.journal != nil {
		now := client.ConnectedAt()
		h.record("create", func(ctx context.Context) error {
			return h.journal.Create(ctx, &model.ConnectionRecord{
				ID:         client.ID(),
				Hub:        h.name,
				RemoteAddr: client.RemoteAddr(),
				Status:     model.ConnectionStatusConnected,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		})
	}
}

// Unregister removes a client from the hub and closes it. Calling it for a
// client that is already gone does nothing.
func (h *Hub) Unregister(client *Client) {
	if !h.registry.Remove(client.ID()) {
		return
	}
	client.Close()
	h.metrics.ActiveConnections.WithLabelValues(h.name).Dec()
	h.clientLogger(client).Info("client unregistered")

	if h.journal != nil {
		h.record("mark_closed", func(ctx context.Context) error {
			return h.journal.MarkClosed(ctx, client.ID(), time.Now())
		})
	}
}

// HandleFrame processes one inbound frame from client. Frames from one
// client must be passed in receipt order.
func (h *Hub) HandleFrame(client *Client, frame model.FrameType, data []byte) {
	if h.policy.DeclaresIdentity() && client.consumeDeclaration() {
		h.declare(client, frame, data)
		return
	}

	msg := envelope.Classify(frame, data)
	h.metrics.FramesReceived.WithLabelValues(h.name, string(msg.Kind)).Inc()

	decision := h.policy.Route(client, msg)
	if _, err := h.Deliver(client, decision, msg); err != nil {
		h.clientLogger(client).WithError(err).Debug("message not delivered")
	}
}

func (h *Hub) declare(client *Client, frame model.FrameType, data []byte) {
	identity, ok := envelope.Identity(frame, data)
	if !ok {
		h.clientLogger(client).Warn("first frame is not an identity declaration; client stays anonymous")
		return
	}

	if err := h.registry.AssignIdentity(client.ID(), identity); err != nil {
		h.clientLogger(client).WithError(err).Warn("identity rejected")
		return
	}
	h.clientLogger(client).Info("client identified")

	if h.journal != nil {
		h.record("set_identity", func(ctx context.Context) error {
			return h.journal.SetIdentity(ctx, client.ID(), identity)
		})
	}
}

// Deliver carries out a routing decision and returns how many recipients
// the message was queued to. Per-recipient failures are logged and skipped.
// A targeted message without a bound recipient returns ErrNoRecipient.
func (h *Hub) Deliver(sender *Client, decision model.Decision, msg model.Message) (int, error) {
	if decision.Kind == model.DecisionDrop {
		h.metrics.Dropped.WithLabelValues(h.name, string(msg.Kind)).Inc()
		if msg.Kind == model.KindText {
			h.clientLogger(sender).WithFields(logrus.Fields{
				"text1": msg.Text1,
				"text2": msg.Text2,
			}).Info("text message")
		}
		return 0, nil
	}

	frameType, data, err := envelope.Encode(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s message: %w", msg.Kind, err)
	}
	frame := Frame{Type: frameType, Data: data}

	switch decision.Kind {
	case model.DecisionBroadcast:
		recipients := h.registry.AllExcept(decision.Except)
		delivered := 0
		for _, r := range recipients {
			if h.sendTo(r, frame) {
				delivered++
			}
		}
		return delivered, nil

	case model.DecisionTargeted:
		r, ok := h.registry.Lookup(decision.Identity)
		if !ok {
			h.metrics.RoutingMisses.WithLabelValues(h.name, decision.Identity).Inc()
			return 0, fmt.Errorf("%w: %s", model.ErrNoRecipient, decision.Identity)
		}
		if !h.sendTo(r, frame) {
			return 0, nil
		}
		return 1, nil
	}

	return 0, nil
}

func (h *Hub) sendTo(r *Client, frame Frame) bool {
	if err := r.Send(frame); err != nil {
		h.metrics.DeliveryFailures.WithLabelValues(h.name).Inc()
		h.clientLogger(r).WithError(err).Warn("failed to send message")
		return false
	}
	h.metrics.Deliveries.WithLabelValues(h.name).Inc()
	return true
}

// Close closes every client connection. The pumps unregister them as they
// exit.
func (h *Hub) Close() {
	for _, client := range h.registry.Snapshot() {
		client.Close()
	}
}

func (h *Hub) clientLogger(c *Client) logrus.FieldLogger {
	return h.logger.WithFields(logging.ClientFields(h.name, c.ID(), c.RemoteAddr(), c.Identity()))
}

func (h *Hub) record(op string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.logger.WithError(err).WithField("op", op).Warn("journal write failed")
	}
}
