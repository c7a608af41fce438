// Package peer contains the relay's end clients: a Receiver that plays audio
// delivered by a hub and a Streamer that feeds PCM chunks into one.
package peer

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/model"
)

const (
	defaultRetryDelay = 3 * time.Second
	handshakeTimeout  = 10 * time.Second
	writeWait         = 10 * time.Second
)

var dialer = &websocket.Dialer{
	HandshakeTimeout: handshakeTimeout,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
}

// dial connects to url and sends identity as the first frame when set. The
// connection is closed when ctx is done.
func dial(ctx context.Context, url, identity string) (*websocket.Conn, func(), error) {
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, nil, model.NewTransportError("dial", url, err)
	}

	if identity != "" {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(identity)); err != nil {
			conn.Close()
			return nil, nil, model.NewTransportError("declare", url, err)
		}
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return conn, func() {
		stop()
		conn.Close()
	}, nil
}

// permanentError stops retry.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retry runs fn until it returns nil, a permanent error, or ctx is done,
// sleeping delay between attempts.
func retry(ctx context.Context, delay time.Duration, logger logrus.FieldLogger, fn func(context.Context) error) error {
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.WithError(err).WithField("retry_in", delay.String()).Warn("connection lost, retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
