// Package envelope classifies raw relay frames into typed messages and
// serialises them back onto the wire.
package envelope

import (
	"encoding/json"
	"strings"

	"github.com/voice-relay/backend/internal/model"
)

const (
	TypeText     = "text"
	TypeAudio    = "audio"
	TypePlayback = "playback_audio"
)

type textEnvelope struct {
	Type  string `json:"type"`
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

type audioEnvelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// inbound accepts any JSON value in the payload fields; producers are not
// consistent about quoting structured text2 annotations.
type inbound struct {
	Type  string          `json:"type"`
	Text1 json.RawMessage `json:"text1"`
	Text2 json.RawMessage `json:"text2"`
	Data  json.RawMessage `json:"data"`
}

// Classify turns a raw frame into a Message. It never fails: binary frames,
// text that is not a JSON object, and objects without a recognised type come
// back as Opaque with the original bytes.
func Classify(frame model.FrameType, raw []byte) model.Message {
	if frame == model.FrameBinary {
		return model.OpaqueMessage(model.FrameBinary, raw)
	}

	var env inbound
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.OpaqueMessage(frame, raw)
	}

	switch env.Type {
	case TypeText:
		return model.TextMessage(fieldText(env.Text1), fieldText(env.Text2))
	case TypeAudio:
		return model.AudioMessage(fieldText(env.Data))
	default:
		return model.OpaqueMessage(frame, raw)
	}
}

// fieldText unquotes JSON strings and keeps any other value as its JSON
// text. Missing and null fields are empty.
func fieldText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Encode returns the frame type and bytes to put on the wire for msg.
// Text and Audio are re-serialised; Opaque passes through untouched.
func Encode(msg model.Message) (model.FrameType, []byte, error) {
	switch msg.Kind {
	case model.KindText:
		data, err := json.Marshal(textEnvelope{Type: TypeText, Text1: msg.Text1, Text2: msg.Text2})
		return model.FrameText, data, err
	case model.KindAudio:
		data, err := json.Marshal(audioEnvelope{Type: TypeAudio, Data: msg.Data})
		return model.FrameText, data, err
	default:
		frame := msg.Frame
		if frame != model.FrameBinary {
			frame = model.FrameText
		}
		return frame, msg.Raw, nil
	}
}

// Identity extracts a declared identity from the first frame of a
// connection. Declarations are bare strings, not envelopes; binary or
// blank frames declare nothing.
func Identity(frame model.FrameType, raw []byte) (string, bool) {
	if frame != model.FrameText {
		return "", false
	}
	id := strings.TrimSpace(string(raw))
	return id, id != ""
}

// Playback builds the acknowledgement a display client sends after playing audio.
func Playback() []byte {
	data, _ := json.Marshal(model.Envelope{Type: TypePlayback})
	return data
}
