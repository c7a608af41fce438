package peer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/audio"
	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/envelope"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/model"
)

// Streamer sends PCM chunks from a Source as audio envelopes.
type Streamer struct {
	cfg    config.StreamerConfig
	src    audio.Source
	logger logrus.FieldLogger

	sent atomic.Int64
}

// NewStreamer creates a Streamer reading from src.
func NewStreamer(cfg config.StreamerConfig, src audio.Source, logger logrus.FieldLogger) *Streamer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Streamer{
		cfg:    cfg,
		src:    src,
		logger: logger.WithField("url", cfg.URL),
	}
}

// Sent returns how many chunks have been written.
func (s *Streamer) Sent() int {
	return int(s.sent.Load())
}

// Run streams until the source is exhausted, reconnecting on connection
// failure. A chunk in flight when the connection drops is lost. Source
// errors end Run.
func (s *Streamer) Run(ctx context.Context) error {
	return retry(ctx, s.cfg.RetryDelay.DurationValue(), s.logger, s.session)
}

func (s *Streamer) session(ctx context.Context) error {
	conn, closeConn, err := dial(ctx, s.cfg.URL, s.cfg.Identity)
	if err != nil {
		return err
	}
	defer closeConn()
	s.logger.Info("streamer connected")

	// Keep reading so pings are answered and a close is noticed.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case err := <-readErr:
			return model.NewTransportError("read", s.cfg.URL, err)
		default:
		}

		chunk, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.logger.WithField("chunks", s.Sent()).Info("source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A broken source will not recover by reconnecting.
			return &permanentError{err: fmt.Errorf("audio source: %w", err)}
		}

		_, data, err := envelope.Encode(model.AudioMessage(base64.StdEncoding.EncodeToString(chunk)))
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return model.NewTransportError("write", s.cfg.URL, err)
		}
		s.sent.Add(1)
	}
}
