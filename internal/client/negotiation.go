package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

// negotiate handles traffic before the host has accepted us. A peer that
// also claims to be a client is resolved by exchanging priorities; the higher
// one is asked to become host.
func (n *Negotiator) negotiate(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.IAmHost:
		n.log.Debug("peer is host, staying client")
	case protocol.PreferredColor:
		// another client's opening; priorities decide who hosts
	case protocol.YouAreClient:
		n.log.Debug("accepted by host")
		n.accepted = true
		n.mirror = engine.NewMirror()
		n.slot = engine.NoSlot
	case protocol.IAmClient:
		n.log.Debug("peer also claims client")
		n.hostConflict = true
		n.sendPriority()
	case protocol.HostPriority:
		if !n.hostConflict {
			n.violation("host priority without a client claim")
			return
		}
		switch {
		case msg.Value == n.lastPriority:
			n.log.Debug("host priority tie, drawing again", zap.Int64("priority", msg.Value))
			n.sendPriority()
		case msg.Value < n.lastPriority:
			n.log.Info("peer outranked, becoming host", zap.Int64("ours", n.lastPriority), zap.Int64("theirs", msg.Value))
			n.yielded = true
			n.delegate.ShouldBecomeHost()
		default:
			n.log.Debug("peer outranks us, staying client")
		}
	default:
		n.violation(fmt.Sprintf("unexpected %s during negotiation", m.Kind()))
	}
}

func (n *Negotiator) sendPriority() {
	n.lastPriority = n.delegate.HostPriority()
	n.send(protocol.HostPriority{Value: n.lastPriority})
}
