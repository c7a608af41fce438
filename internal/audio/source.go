package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Source yields PCM chunks. Next returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// ReaderSource cuts an io.Reader into fixed-size chunks. The final chunk may
// be shorter but is always a whole number of samples.
type ReaderSource struct {
	r         io.Reader
	chunkSize int
}

// NewReaderSource creates a ReaderSource. chunkSize must be a positive even
// number of bytes.
func NewReaderSource(r io.Reader, chunkSize int) (*ReaderSource, error) {
	if chunkSize <= 0 || chunkSize%2 != 0 {
		return nil, fmt.Errorf("chunk size must be a positive even number, got %d", chunkSize)
	}
	return &ReaderSource{r: r, chunkSize: chunkSize}, nil
}

// Next reads the next chunk.
func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		n -= n % 2
		if n == 0 {
			return nil, io.EOF
		}
		return buf[:n], nil
	default:
		return nil, err
	}
}
