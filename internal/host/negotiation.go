package host

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

// negotiate handles traffic on a slot whose peer has not yet been accepted.
// The peer must declare itself a client before the negotiation timer fires;
// a peer that also claims to be host is resolved by exchanging priorities.
func (c *Coordinator) negotiate(p *peer, m protocol.Message) {
	log := c.log.With(zap.Int("slot", p.index))
	switch msg := m.(type) {
	case protocol.PreferredColor:
		p.color, p.hasColor = msg.Color, true
	case protocol.IAmClient:
		c.accept(p)
	case protocol.IAmHost:
		log.Debug("peer also claims host")
		p.hostConflict = true
		c.sendPriority(p)
	case protocol.HostPriority:
		if !p.hostConflict {
			c.violation(p, "host priority without a host claim")
			return
		}
		switch {
		case msg.Value == p.lastPriority:
			log.Debug("host priority tie, drawing again", zap.Int64("priority", msg.Value))
			c.sendPriority(p)
		case msg.Value < p.lastPriority:
			log.Debug("outranked peer, waiting for it to become client")
		default:
			log.Info("peer outranks us, yielding host role", zap.Int64("ours", p.lastPriority), zap.Int64("theirs", msg.Value))
			p.yielded = true
			p.negotiating = false
			c.inbox.Cancel(negotiationKey(p.index))
			c.delegate.ShouldBecomeClient(p.index)
		}
	default:
		c.violation(p, fmt.Sprintf("unexpected %s during negotiation", m.Kind()))
	}
}

func (c *Coordinator) sendPriority(p *peer) {
	p.lastPriority = c.delegate.HostPriority()
	c.send(p, protocol.HostPriority{Value: p.lastPriority})
}

func (c *Coordinator) onNegotiationTimeout(slot int) {
	p := c.peer(slot)
	if p == nil || !p.negotiating || p.tearingDown {
		return
	}
	c.log.Warn("peer did not declare itself client in time", zap.Int("slot", slot), zap.Duration("timeout", c.cfg.NegotiationTimeout))
	c.drop(p)
}

func (c *Coordinator) accept(p *peer) {
	c.inbox.Cancel(negotiationKey(p.index))
	p.negotiating = false
	if err := c.lobby.Join(p.index); err != nil {
		c.violation(p, err.Error())
		return
	}
	p.accepted = true

	color := p.color
	if !p.hasColor {
		color = c.delegate.DefaultColor(p.index)
	}
	_ = c.lobby.SetColor(p.index, color)
	c.log.Info("client accepted", zap.Int("slot", p.index))

	c.welcome(p)
	c.broadcastExcept(p.index, protocol.PreferredColor{Slot: p.index, Color: color})
	c.broadcastExcept(p.index, protocol.PlayersInLobby{Slots: c.lobby.Present()})
	c.broadcastExcept(p.index, protocol.PlayerStatuses{Statuses: c.lobby.Statuses()})
	c.apply(c.lobby.Reconcile())
}
