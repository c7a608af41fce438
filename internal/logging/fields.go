package logging

import "github.com/sirupsen/logrus"

// BaseFields carries the action and config path for entry-point logs.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ClientFields identifies one connection on one hub.
func ClientFields(hub, clientID, remote, identity string) logrus.Fields {
	fields := logrus.Fields{
		"hub":    hub,
		"client": clientID,
		"remote": remote,
	}
	if identity != "" {
		fields["identity"] = identity
	}
	return fields
}

// BridgeFields describes a bridge session.
func BridgeFields(upstream, downstream string, session int) logrus.Fields {
	return logrus.Fields{
		"upstream":   upstream,
		"downstream": downstream,
		"session":    session,
	}
}
