package peer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
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

// Receiver is the display client. It plays every audio message it receives
// and acknowledges each clip with a playback_audio envelope.
type Receiver struct {
	cfg    config.ReceiverConfig
	sink   audio.Sink
	logger logrus.FieldLogger

	played atomic.Int64
}

// NewReceiver creates a Receiver that plays into sink.
func NewReceiver(cfg config.ReceiverConfig, sink audio.Sink, logger logrus.FieldLogger) *Receiver {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Receiver{
		cfg:    cfg,
		sink:   sink,
		logger: logger.WithFields(logrus.Fields{"url": cfg.URL, "identity": cfg.Identity}),
	}
}

// Played returns how many clips have been played.
func (r *Receiver) Played() int {
	return int(r.played.Load())
}

// Run keeps the receiver connected until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	return retry(ctx, r.cfg.RetryDelay.DurationValue(), r.logger, r.session)
}

func (r *Receiver) session(ctx context.Context) error {
	conn, closeConn, err := dial(ctx, r.cfg.URL, r.cfg.Identity)
	if err != nil {
		return err
	}
	defer closeConn()
	r.logger.Info("receiver connected")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return model.NewTransportError("read", r.cfg.URL, err)
		}

		frame := model.FrameText
		if mt == websocket.BinaryMessage {
			frame = model.FrameBinary
		}
		if err := r.handle(ctx, conn, envelope.Classify(frame, data)); err != nil {
			return err
		}
	}
}

// handle only returns errors that should drop the connection.
func (r *Receiver) handle(ctx context.Context, conn *websocket.Conn, msg model.Message) error {
	switch msg.Kind {
	case model.KindText:
		r.logText(msg)
		return nil

	case model.KindAudio:
		pcm, err := msg.AudioBytes()
		if err != nil {
			r.logger.WithError(err).Warn("audio payload is not base64")
			return nil
		}
		return r.play(ctx, conn, pcm)

	default:
		if msg.Frame != model.FrameText {
			r.logger.WithField("bytes", len(msg.Raw)).Debug("ignoring binary frame")
			return nil
		}
		// Older producers sent bare base64 PCM without an envelope.
		pcm, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(msg.Raw)))
		if err != nil {
			r.logger.WithField("bytes", len(msg.Raw)).Debug("ignoring unrecognised text frame")
			return nil
		}
		r.logger.Debug("received raw base64 audio")
		return r.play(ctx, conn, pcm)
	}
}

func (r *Receiver) logText(msg model.Message) {
	entry := r.logger.WithField("text1", msg.Text1)

	var emotions map[string]float64
	if err := json.Unmarshal([]byte(msg.Text2), &emotions); err == nil {
		entry = entry.WithField("emotions", emotions)
	} else {
		entry = entry.WithField("text2", msg.Text2)
	}
	entry.Info("text message")
}

func (r *Receiver) play(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		r.logger.WithError(err).Warn("dropping malformed audio")
		return nil
	}
	audio.FadeIn(samples, r.cfg.FadeIn.DurationValue(), r.cfg.SampleRate)

	if err := r.sink.Play(ctx, samples, r.cfg.SampleRate); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WithError(err).Warn("playback failed")
		return nil
	}
	r.played.Add(1)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, envelope.Playback()); err != nil {
		return model.NewTransportError("write", r.cfg.URL, err)
	}
	return nil
}
