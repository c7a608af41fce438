// Package bridge mirrors traffic between two relay hubs. It is a client of
// both and restarts the pair of connections together whenever either leg
// fails.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/envelope"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/model"
)

const (
	defaultRetryDelay       = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second

	dirDown = "upstream_to_downstream"
	dirUp   = "downstream_to_upstream"
)

// Config describes the two legs.
type Config struct {
	Upstream           string
	Downstream         string
	UpstreamIdentity   string
	DownstreamIdentity string
	RetryDelay         time.Duration
	HandshakeTimeout   time.Duration
	WriteWait          time.Duration
	// Bidirectional also forwards downstream traffic upstream. The downstream
	// leg is read either way so a dropped connection is noticed.
	Bidirectional bool
}

// FromConfig converts the file configuration.
func FromConfig(c config.BridgeConfig) Config {
	return Config{
		Upstream:           c.Upstream,
		Downstream:         c.Downstream,
		UpstreamIdentity:   c.UpstreamIdentity,
		DownstreamIdentity: c.DownstreamIdentity,
		RetryDelay:         c.RetryDelay.DurationValue(),
		HandshakeTimeout:   c.HandshakeTimeout.DurationValue(),
		WriteWait:          c.WriteWait.DurationValue(),
		Bidirectional:      c.Bidirectional,
	}
}

// Bridge keeps an upstream and a downstream connection open and copies
// frames between them.
type Bridge struct {
	cfg     Config
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	connected atomic.Bool
	sessions  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Bridge. logger and m may be nil.
func New(cfg Config, logger logrus.FieldLogger, m *metrics.Metrics) *Bridge {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Bridge{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Connected reports whether both legs are currently up.
func (b *Bridge) Connected() bool {
	return b.connected.Load()
}

// Sessions returns how many times the pair of legs has been dialed.
func (b *Bridge) Sessions() int {
	return int(b.sessions.Load())
}

// Start runs the bridge in the background until Stop or ctx is done.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()
}

// Stop cancels a started bridge and waits for it to close both legs.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run connects both legs and forwards until ctx is done. Any failure tears
// down both legs and retries after the fixed delay.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.metrics.BridgeReconnects.WithLabelValues(reason(err)).Inc()
		b.logger.WithFields(logrus.Fields{
			"retry_in": b.cfg.RetryDelay.String(),
		}).WithError(err).Warn("bridge down, reconnecting both legs")

		timer := time.NewTimer(b.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bridge) session(ctx context.Context) error {
	n := int(b.sessions.Add(1))
	logger := b.logger.WithFields(logging.BridgeFields(b.cfg.Upstream, b.cfg.Downstream, n))

	up, err := b.dial(ctx, b.cfg.Upstream, b.cfg.UpstreamIdentity)
	if err != nil {
		return err
	}
	defer up.Close()

	down, err := b.dial(ctx, b.cfg.Downstream, b.cfg.DownstreamIdentity)
	if err != nil {
		return err
	}
	defer down.Close()

	b.connected.Store(true)
	defer b.connected.Store(false)
	logger.Info("bridge connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Closing both legs unblocks whichever reader is still waiting.
		<-gctx.Done()
		up.Close()
		down.Close()
		return nil
	})
	g.Go(func() error {
		return b.forward(up, down, b.cfg.Downstream, dirDown, true)
	})
	g.Go(func() error {
		return b.forward(down, up, b.cfg.Upstream, dirUp, b.cfg.Bidirectional)
	})

	return g.Wait()
}

func (b *Bridge) dial(ctx context.Context, url, identity string) (*websocket.Conn, error) {
	conn, resp, err := b.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, model.NewTransportError("dial", url, err)
	}

	if identity != "" {
		conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(identity)); err != nil {
			conn.Close()
			return nil, model.NewTransportError("declare", url, err)
		}
	}
	return conn, nil
}

// forward copies frames from src to dst until either side fails. With relay
// unset it only drains src.
func (b *Bridge) forward(src, dst *websocket.Conn, dstURL, direction string, relay bool) error {
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			return model.NewTransportError("read", src.RemoteAddr().String(), err)
		}
		if !relay {
			continue
		}

		frame := model.FrameText
		if mt == websocket.BinaryMessage {
			frame = model.FrameBinary
		}
		msg := envelope.Classify(frame, data)

		outType, out, err := envelope.Encode(msg)
		if err != nil {
			b.logger.WithError(err).WithField("direction", direction).Warn("failed to encode frame, skipping")
			continue
		}

		wsType := websocket.TextMessage
		if outType == model.FrameBinary {
			wsType = websocket.BinaryMessage
		}
		dst.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
		if err := dst.WriteMessage(wsType, out); err != nil {
			return model.NewTransportError("write", dstURL, err)
		}
		b.metrics.BridgeForwarded.WithLabelValues(direction, string(msg.Kind)).Inc()
	}
}

func reason(err error) string {
	var te *model.TransportError
	if errors.As(err, &te) {
		return te.Op
	}
	if err == nil {
		return "closed"
	}
	return "error"
}
