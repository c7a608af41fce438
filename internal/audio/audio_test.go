package audio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePCM16(t *testing.T) {
	samples, err := DecodePCM16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, -32768}, samples)

	_, err = DecodePCM16([]byte{0x01})
	assert.Error(t, err)
}

func TestPCM16RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(s)) == s", prop.ForAll(
		func(samples []int16) bool {
			got, err := DecodePCM16(EncodePCM16(samples))
			if err != nil || len(got) != len(samples) {
				return false
			}
			for i := range samples {
				if got[i] != samples[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int16()),
	))

	properties.TestingRun(t)
}

func TestFadeIn(t *testing.T) {
	t.Run("ramps the first samples", func(t *testing.T) {
		samples := []int16{1000, 1000, 1000, 1000, 1000, 1000}
		// 5 samples at 1000 Hz.
		FadeIn(samples, 5*time.Millisecond, 1000)
		assert.Equal(t, []int16{0, 250, 500, 750, 1000, 1000}, samples)
	})

	t.Run("short clip ramps over its length", func(t *testing.T) {
		samples := []int16{-300, -300, -300}
		FadeIn(samples, 50*time.Millisecond, DefaultSampleRate)
		assert.Equal(t, []int16{0, -150, -300}, samples)
	})

	t.Run("zero duration is a no-op", func(t *testing.T) {
		samples := []int16{7, 7}
		FadeIn(samples, 0, DefaultSampleRate)
		assert.Equal(t, []int16{7, 7}, samples)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, FadeIn(nil, 50*time.Millisecond, DefaultSampleRate))
	})
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.Play(context.Background(), []int16{1, -1}, DefaultSampleRate))
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff}, buf.Bytes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Play(ctx, []int16{1}, DefaultSampleRate), context.Canceled)
}

func TestReaderSource(t *testing.T) {
	_, err := NewReaderSource(strings.NewReader(""), 3)
	require.Error(t, err)

	src, err := NewReaderSource(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7}), 4)
	require.NoError(t, err)
	ctx := context.Background()

	chunk, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, chunk)

	chunk, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, chunk, "odd trailing byte is dropped")

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
