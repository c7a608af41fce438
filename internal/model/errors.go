package model

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned when sending to a client whose connection is gone.
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when a client's outbound queue overflows.
	// The client is closed when this happens.
	ErrSendBufferFull = errors.New("client send buffer full")

	// ErrIdentityAlreadySet is returned when a connection declares a second identity.
	ErrIdentityAlreadySet = errors.New("identity already assigned")

	// ErrHubClosed is returned when a connection arrives after the hub began shutting down.
	ErrHubClosed = errors.New("hub is shutting down")

	// ErrNoRecipient is returned when a targeted message has no bound recipient.
	ErrNoRecipient = errors.New("no recipient bound to identity")

	// ErrReservedIdentityRequired is returned when a targeted policy has no reserved identity.
	ErrReservedIdentityRequired = errors.New("reserved identity is required for targeted routing")

	// ErrUnknownPolicy is returned for an unrecognized routing policy name.
	ErrUnknownPolicy = errors.New("unknown routing policy")

	// ErrConnectionNotFound is returned when a journal record does not exist.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrJournalDisabled is returned by journal queries when no database is configured.
	ErrJournalDisabled = errors.New("connection journal disabled")
)

// TransportError describes a dial, read or write failure on a connection.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with the failing operation and peer address.
func NewTransportError(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}
