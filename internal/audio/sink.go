package audio

import (
	"context"
	"io"
	"sync"
)

// Sink plays decoded audio. Play blocks until the clip has been handed off.
type Sink interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// WriterSink writes raw PCM to an io.Writer, e.g. a file or a pipe into an
// external player.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a Sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Play writes samples as little-endian PCM16. sampleRate is not recorded;
// the consumer must already know it.
func (s *WriterSink) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(EncodePCM16(samples))
	return err
}
