// Package transport is the Connection Slot contract the lobby actors drive:
// one bidirectional, reliable, ordered message channel to one peer.
package transport

import (
	"errors"

	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

var ErrNotConnected = errors.New("slot not connected")
var ErrAlreadyConnected = errors.New("slot already connected or connecting")

type Status int

const (
	StatusDisconnected Status = iota
	StatusPending
	StatusConnected
	StatusBroken
	StatusPeerDisconnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusPending:
		return "PENDING"
	case StatusConnected:
		return "CONNECTED"
	case StatusBroken:
		return "BROKEN"
	case StatusPeerDisconnected:
		return "PEER_DISCONNECTED"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether s ends a connection attempt or a live connection.
func (s Status) Terminal() bool {
	return s == StatusBroken || s == StatusPeerDisconnected || s == StatusFailed
}

type EventType int

const (
	EventStatus EventType = iota
	EventMessage
	EventDoneReceiving
)

// Event is what a slot reports to its owner. Err is set on an EventMessage
// whose frame could not be decoded.
type Event struct {
	Type    EventType
	Status  Status
	Message protocol.Message
	Err     error
}

// Handler receives a slot's events in order. It must not block; actors
// forward them into their mailbox.
type Handler func(Event)

// Slot is one connection owned by exactly one actor. Disconnect is local and
// produces no events for the caller; the peer sees PEER_DISCONNECTED.
type Slot interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	Send(protocol.Message) error
}
