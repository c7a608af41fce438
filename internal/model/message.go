package model

import "encoding/base64"

// Kind is the classified kind of an inbound frame.
type Kind string

const (
	KindText   Kind = "text"
	KindAudio  Kind = "audio"
	KindOpaque Kind = "opaque"
)

// FrameType mirrors the WebSocket data frame types.
type FrameType int

const (
	FrameText   FrameType = 1
	FrameBinary FrameType = 2
)

func (f FrameType) String() string {
	switch f {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Envelope is the structured wire format carried in text frames.
type Envelope struct {
	Type  string `json:"type"`
	Text1 string `json:"text1,omitempty"`
	Text2 string `json:"text2,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Message is a classified frame. Exactly one of the kind-specific field
// groups is meaningful, selected by Kind.
type Message struct {
	Kind Kind

	// Text
	Text1 string
	Text2 string

	// Audio, base64 text as received.
	Data string

	// Opaque, relayed byte-for-byte in the frame type it arrived in.
	Raw   []byte
	Frame FrameType
}

// TextMessage builds a Text message.
func TextMessage(text1, text2 string) Message {
	return Message{Kind: KindText, Text1: text1, Text2: text2, Frame: FrameText}
}

// AudioMessage builds an Audio message from an already encoded payload.
func AudioMessage(data string) Message {
	return Message{Kind: KindAudio, Data: data, Frame: FrameText}
}

// OpaqueMessage builds an Opaque message carrying raw unchanged.
func OpaqueMessage(frame FrameType, raw []byte) Message {
	return Message{Kind: KindOpaque, Raw: raw, Frame: frame}
}

// AudioBytes decodes the base64 audio payload.
func (m Message) AudioBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Data)
}

// Size returns the payload length used for logging and metrics.
func (m Message) Size() int {
	switch m.Kind {
	case KindText:
		return len(m.Text1) + len(m.Text2)
	case KindAudio:
		return len(m.Data)
	default:
		return len(m.Raw)
	}
}
