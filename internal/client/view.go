package client

import (
	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

type View struct {
	Lobby    engine.Lobby
	Slot     int
	Status   transport.Status
	Accepted bool
	Welcomed bool
	Yielded  bool
	Failures int
}

func (n *Negotiator) view() View {
	return View{
		Lobby:    n.mirror.Clone(),
		Slot:     n.slot,
		Status:   n.status,
		Accepted: n.accepted,
		Welcomed: n.welcomed,
		Yielded:  n.yielded,
		Failures: n.failures,
	}
}
