package model

// DecisionKind selects how a message is delivered.
type DecisionKind int

const (
	DecisionDrop DecisionKind = iota
	DecisionBroadcast
	DecisionTargeted
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionBroadcast:
		return "broadcast"
	case DecisionTargeted:
		return "targeted"
	default:
		return "drop"
	}
}

// Decision is the output of a routing policy. It is never persisted.
type Decision struct {
	Kind     DecisionKind
	Except   string // sender handle for broadcasts
	Identity string // recipient identity for targeted delivery
	Reason   string // why a message was dropped
}

// BroadcastExcept delivers to every live connection except sender.
func BroadcastExcept(sender string) Decision {
	return Decision{Kind: DecisionBroadcast, Except: sender}
}

// Targeted delivers to the connection bound to identity, if any.
func Targeted(identity string) Decision {
	return Decision{Kind: DecisionTargeted, Identity: identity}
}

// Drop discards the message.
func Drop(reason string) Decision {
	return Decision{Kind: DecisionDrop, Reason: reason}
}
