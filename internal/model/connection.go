package model

import "time"

// ConnectionStatus represents the lifecycle state of a relay connection.
type ConnectionStatus string

const (
	ConnectionStatusConnected  ConnectionStatus = "connected"
	ConnectionStatusIdentified ConnectionStatus = "identified"
	ConnectionStatusClosed     ConnectionStatus = "closed"
)

// ConnectionRecord is the journal entry for one accepted connection.
// Payloads are never recorded.
type ConnectionRecord struct {
	ID         string           `json:"id"`
	Hub        string           `json:"hub"`
	RemoteAddr string           `json:"remoteAddr"`
	Identity   string           `json:"identity,omitempty"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
	ClosedAt   *time.Time       `json:"closedAt,omitempty"`
}

// Duration returns how long the connection was (or has been) open.
func (r *ConnectionRecord) Duration() time.Duration {
	if r.ClosedAt != nil {
		return r.ClosedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}
