// Package audio handles the 16-bit mono PCM carried in audio envelopes.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultSampleRate is the rate the voice pipeline produces.
const DefaultSampleRate = 22050

// DecodePCM16 reads little-endian signed 16-bit samples. A trailing odd byte
// is an error.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 payload has odd length %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples, nil
}

// EncodePCM16 writes samples as little-endian signed 16-bit.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// FadeIn scales the first duration*sampleRate samples by a linear ramp from
// 0 to 1, in place, and returns samples. Short clips are ramped over their
// whole length.
func FadeIn(samples []int16, duration time.Duration, sampleRate int) []int16 {
	n := int(int64(duration) * int64(sampleRate) / int64(time.Second))
	if n > len(samples) {
		n = len(samples)
	}
	if n <= 0 {
		return samples
	}
	if n == 1 {
		samples[0] = 0
		return samples
	}

	for i := 0; i < n; i++ {
		gain := float32(i) / float32(n-1)
		samples[i] = int16(float32(samples[i]) * gain)
	}
	return samples
}
