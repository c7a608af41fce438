// Package routing decides who receives a classified relay message.
package routing

import (
	"fmt"
	"strings"

	"github.com/voice-relay/backend/internal/model"
)

// Policy names accepted in configuration.
const (
	NameBroadcast = "broadcast"
	NameTargeted  = "targeted"
)

// Sender is the routing view of the connection a message came from.
type Sender interface {
	ID() string
	Identity() string
}

// Policy maps a message and its sender to a delivery decision.
type Policy interface {
	Name() string
	// DeclaresIdentity reports whether the first frame of every connection
	// is a bare identity declaration instead of a payload.
	DeclaresIdentity() bool
	Route(sender Sender, msg model.Message) model.Decision
}

// Broadcast delivers every message to all connections but the sender.
type Broadcast struct{}

// Name returns "broadcast".
func (Broadcast) Name() string { return NameBroadcast }

// DeclaresIdentity is false: every frame is a payload.
func (Broadcast) DeclaresIdentity() bool { return false }

// Route sends msg to every connection except the sender, whatever its kind.
func (Broadcast) Route(sender Sender, _ model.Message) model.Decision {
	return model.BroadcastExcept(sender.ID())
}

// Targeted delivers audio and opaque payloads to the single connection bound
// to Reserved. Text annotations are only observed locally.
type Targeted struct {
	Reserved string
}

// Name returns "targeted".
func (t Targeted) Name() string { return NameTargeted }

// DeclaresIdentity is true: the first frame binds the connection identity.
func (t Targeted) DeclaresIdentity() bool { return true }

// Route drops text, and audio or opaque frames sent by the reserved
// recipient itself. Other audio and opaque frames go to Reserved.
func (t Targeted) Route(sender Sender, msg model.Message) model.Decision {
	switch msg.Kind {
	case model.KindText:
		return model.Drop("text observed")
	case model.KindAudio, model.KindOpaque:
		if sender.Identity() == t.Reserved {
			return model.Drop("sender is the reserved recipient")
		}
		return model.Targeted(t.Reserved)
	default:
		return model.Drop("unknown kind")
	}
}

// New builds the policy named by name. A targeted policy needs a reserved
// recipient identity.
func New(name, reserved string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameBroadcast:
		return Broadcast{}, nil
	case NameTargeted:
		reserved = strings.TrimSpace(reserved)
		if reserved == "" {
			return nil, model.ErrReservedIdentityRequired
		}
		return Targeted{Reserved: reserved}, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownPolicy, name)
	}
}
