package routing

import (
	"errors"
	"testing"

	"github.com/voice-relay/backend/internal/model"
)

type stubSender struct {
	id       string
	identity string
}

func (s stubSender) ID() string       { return s.id }
func (s stubSender) Identity() string { return s.identity }

func TestBroadcastRoutesEveryKindExceptSender(t *testing.T) {
	sender := stubSender{id: "c1"}
	msgs := []model.Message{
		model.TextMessage("a", "b"),
		model.AudioMessage("AAAA"),
		model.OpaqueMessage(model.FrameBinary, []byte{1, 2}),
	}

	for _, msg := range msgs {
		d := Broadcast{}.Route(sender, msg)
		if d.Kind != model.DecisionBroadcast || d.Except != "c1" {
			t.Errorf("kind %s: expected broadcast except c1, got %+v", msg.Kind, d)
		}
	}
}

func TestTargetedRoutesAudioAndOpaqueToReserved(t *testing.T) {
	p := Targeted{Reserved: "display"}
	sender := stubSender{id: "c1", identity: "bridge"}

	for _, msg := range []model.Message{
		model.AudioMessage("AAAA"),
		model.OpaqueMessage(model.FrameText, []byte("AAAA")),
	} {
		d := p.Route(sender, msg)
		if d.Kind != model.DecisionTargeted || d.Identity != "display" {
			t.Errorf("kind %s: expected targeted display, got %+v", msg.Kind, d)
		}
	}
}

func TestTargetedDropsText(t *testing.T) {
	d := Targeted{Reserved: "display"}.Route(stubSender{id: "c1"}, model.TextMessage("hi", "{}"))
	if d.Kind != model.DecisionDrop {
		t.Errorf("expected text to be dropped, got %+v", d)
	}
}

func TestTargetedNeverEchoesToReserved(t *testing.T) {
	d := Targeted{Reserved: "display"}.Route(
		stubSender{id: "c9", identity: "display"},
		model.OpaqueMessage(model.FrameText, []byte(`{"type":"playback_audio"}`)),
	)
	if d.Kind != model.DecisionDrop {
		t.Errorf("expected drop for reserved sender, got %+v", d)
	}
}

func TestNew(t *testing.T) {
	p, err := New("", "")
	if err != nil || p.Name() != NameBroadcast {
		t.Fatalf("expected default broadcast policy, got %v, %v", p, err)
	}
	if p.DeclaresIdentity() {
		t.Error("broadcast policy should not expect identity declarations")
	}

	p, err = New("Targeted", " display ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp, ok := p.(Targeted); !ok || tp.Reserved != "display" || !p.DeclaresIdentity() {
		t.Errorf("unexpected targeted policy: %#v", p)
	}

	if _, err := New("targeted", ""); !errors.Is(err, model.ErrReservedIdentityRequired) {
		t.Errorf("expected ErrReservedIdentityRequired, got %v", err)
	}
	if _, err := New("multicast", ""); !errors.Is(err, model.ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}
