package host

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

type peer struct {
	index int
	conn  transport.Slot

	status       transport.Status
	negotiating  bool
	accepted     bool
	hostConflict bool
	lastPriority int64
	yielded      bool
	tearingDown  bool

	color    engine.Color
	hasColor bool
}

func (p *peer) reset() {
	*p = peer{index: p.index, conn: p.conn}
}

// reachable reports whether broadcasts should go to p.
func (p *peer) reachable() bool {
	return p.accepted && !p.tearingDown && p.status == transport.StatusConnected
}

func (c *Coordinator) onSlotEvent(slot int, ev transport.Event) {
	p := c.peer(slot)
	if p == nil {
		return
	}
	switch ev.Type {
	case transport.EventStatus:
		c.onStatus(p, ev.Status)
	case transport.EventMessage:
		if p.status != transport.StatusConnected || p.yielded {
			return
		}
		if ev.Err != nil {
			c.violation(p, ev.Err.Error())
			return
		}
		if p.accepted {
			c.onRuntime(p, ev.Message)
		} else {
			c.negotiate(p, ev.Message)
		}
	case transport.EventDoneReceiving:
		if p.tearingDown {
			c.drop(p)
		}
	}
}

func (c *Coordinator) onStatus(p *peer, st transport.Status) {
	switch {
	case st == transport.StatusConnected:
		if p.status != transport.StatusPending {
			return
		}
		p.status = transport.StatusConnected
		p.negotiating = true
		c.log.Debug("slot connected, negotiating", zap.Int("slot", p.index))
		c.inbox.PostAfter(negotiationKey(p.index), c.cfg.NegotiationTimeout, negotiationTimeout{slot: p.index})
		c.send(p, protocol.IAmHost{})
	case st.Terminal():
		c.teardown(p, st)
	}
}

// teardown starts the disconnect grace period. Messages already in flight
// from the peer are still processed until DONE_RECEIVING or the grace timer,
// whichever comes first.
func (c *Coordinator) teardown(p *peer, st transport.Status) {
	if p.tearingDown || p.status == transport.StatusDisconnected {
		return
	}
	if p.status == transport.StatusPending {
		c.log.Debug("slot connect failed", zap.Int("slot", p.index), zap.Stringer("status", st))
		_ = p.conn.Disconnect()
		p.status = transport.StatusDisconnected
		c.scheduleReconnect(p)
		return
	}
	c.log.Info("slot connection lost", zap.Int("slot", p.index), zap.Stringer("status", st))
	p.tearingDown = true
	c.inbox.Cancel(negotiationKey(p.index))
	c.inbox.PostAfter(graceKey(p.index), c.cfg.DisconnectGrace, disconnectGrace{slot: p.index})
}

// drop forgets everything about the slot's connection, removes its player
// from the lobby and arms a reconnect.
func (c *Coordinator) drop(p *peer) {
	c.inbox.Cancel(negotiationKey(p.index))
	c.inbox.Cancel(graceKey(p.index))
	wasAccepted := p.accepted
	if err := p.conn.Disconnect(); err != nil {
		c.log.Warn("disconnect slot", zap.Int("slot", p.index), zap.Error(err))
	}
	p.reset()
	p.status = transport.StatusDisconnected
	if wasAccepted {
		c.depart(p.index)
	}
	c.scheduleReconnect(p)
}

// depart tells the remaining clients about the departure before the
// countdown consequences, so nobody sees an abort that names a player who
// has not left yet.
func (c *Coordinator) depart(slot int) {
	events := c.lobby.Leave(slot)
	c.log.Info("player left", zap.Int("slot", slot), zap.Bool("aborted_countdown", engine.ContainsEvent(events, engine.EvtCountdownAborted)))
	c.broadcast(protocol.PlayerQuit{Slot: slot})
	c.broadcastRoster()
	c.apply(events)
}

func (c *Coordinator) violation(p *peer, reason string) {
	c.log.Warn("protocol violation", zap.Int("slot", p.index), zap.String("reason", reason))
	c.kick(p, reason)
}

func (c *Coordinator) kick(p *peer, reason string) {
	if p.status == transport.StatusConnected {
		_ = p.conn.Send(protocol.Kick{Slot: p.index, Reason: reason})
	}
	c.drop(p)
}

func (c *Coordinator) send(p *peer, m protocol.Message) {
	if err := p.conn.Send(m); err != nil {
		c.log.Warn("send failed", zap.Int("slot", p.index), zap.String("kind", string(m.Kind())), zap.Error(err))
		c.teardown(p, transport.StatusBroken)
	}
}

func (c *Coordinator) broadcast(m protocol.Message) {
	c.broadcastExcept(engine.NoSlot, m)
}

func (c *Coordinator) broadcastExcept(skip int, m protocol.Message) {
	for _, p := range c.peers {
		if p == nil || p.index == skip || !p.reachable() {
			continue
		}
		c.send(p, m)
	}
}

func (c *Coordinator) broadcastRoster() {
	c.broadcast(protocol.PlayersInLobby{Slots: c.lobby.Present()})
	c.broadcast(protocol.PlayerStatuses{Statuses: c.lobby.Statuses()})
}
