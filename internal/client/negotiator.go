// Package client drives one connection slot from the client side of the lobby
// protocol: it negotiates roles with its host candidate, mirrors the lobby
// from the host's messages and forwards local actions once welcomed.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

var ErrStopped = errors.New("negotiator stopped")

type Config struct {
	Name  string
	Color engine.Color
	// Nonce identifies this player across reconnects. Empty means a fresh one.
	Nonce           string
	DisconnectGrace time.Duration
}

// Delegate is the application side of a negotiator. Its methods run on the
// negotiator goroutine and must not block.
type Delegate interface {
	// ReconnectDelay is asked after every failed or lost connection, with the
	// number of consecutive failures and how long we have been without a
	// welcomed connection.
	ReconnectDelay(failures int, downtime time.Duration) time.Duration
	HostPriority() int64
	// ShouldBecomeHost reports that the peer, also a client, was outranked.
	ShouldBecomeHost()
	ConnectionStatusChanged(connected bool)
	Welcomed(lobby engine.Lobby, slot int)
	HostIdentified(slot int, name string)
	Kicked(reason string)
	ServerClosing(forever bool)
	TextMessage(slot int, text string)
	// Launched delivers this player's launch role. Lobby traffic stops after it.
	Launched(m protocol.Message)
	// StoppedWithOpenConnection hands the still-open slot to the application.
	StoppedWithOpenConnection(conn transport.Slot)
}

type SlotFactory func(h transport.Handler) transport.Slot

type exitMode int

const (
	exitNone exitMode = iota
	exitClose
	exitHandoff
)

type Negotiator struct {
	cfg      Config
	delegate Delegate
	log      *zap.Logger
	inbox    *mailbox.Mailbox[Msg]
	conn     transport.Slot

	status       transport.Status
	accepted     bool
	welcomed     bool
	hostConflict bool
	lastPriority int64
	yielded      bool
	tearingDown  bool
	forever      bool
	exit         exitMode

	slot     int
	mirror   *engine.Lobby
	failures int
	lostAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config, d Delegate, newSlot SlotFactory, log *zap.Logger) *Negotiator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Nonce == "" {
		cfg.Nonce = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(parent)
	n := &Negotiator{
		cfg:      cfg,
		delegate: d,
		log:      log.With(zap.String("player", cfg.Name)),
		inbox:    mailbox.New[Msg](),
		slot:     engine.NoSlot,
		mirror:   engine.NewMirror(),
		lostAt:   time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	n.conn = newSlot(func(ev transport.Event) { n.inbox.Post(slotEvent{ev: ev}) })
	n.inbox.Post(start{})
	go n.loop()
	return n
}

func (n *Negotiator) Post(m Msg) bool { return n.inbox.Post(m) }

func (n *Negotiator) Stop() { n.inbox.Post(Stop{}) }

func (n *Negotiator) Handoff() { n.inbox.Post(Handoff{}) }

// StopNow disconnects without notice and without draining the mailbox.
func (n *Negotiator) StopNow() { n.cancel() }

func (n *Negotiator) Done() <-chan struct{} { return n.done }

func (n *Negotiator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !n.inbox.Post(GetView{Reply: reply}) {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-n.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (n *Negotiator) loop() {
	defer close(n.done)
	for {
		m, err := n.inbox.Next(n.ctx)
		if err != nil {
			n.finish(true)
			return
		}
		switch msg := m.(type) {
		case start:
			n.connect()
		case slotEvent:
			n.onSlotEvent(msg.ev)
		case disconnectGrace:
			if n.tearingDown {
				n.drop()
			}
		case reconnect:
			if n.status == transport.StatusDisconnected {
				n.connect()
			}
		case Stop:
			if n.welcomed && n.status == transport.StatusConnected {
				_ = n.conn.Send(protocol.PlayerQuit{Slot: n.slot})
			}
			n.log.Info("leaving lobby")
			n.finish(true)
			return
		case Handoff:
			n.finish(false)
			return
		case GetView:
			msg.Reply <- n.view()
		default:
			n.onCommand(m)
		}
		switch n.exit {
		case exitClose:
			n.finish(true)
			return
		case exitHandoff:
			n.finish(false)
			return
		}
	}
}

// finish ends the actor. Without disconnect the slot is handed to the
// delegate still open.
func (n *Negotiator) finish(disconnect bool) {
	n.inbox.Close()
	n.cancel()
	if disconnect {
		if err := n.conn.Disconnect(); err != nil {
			n.log.Warn("disconnect", zap.Error(err))
		}
		return
	}
	n.delegate.StoppedWithOpenConnection(n.conn)
}

func (n *Negotiator) connect() {
	n.status = transport.StatusPending
	if err := n.conn.Connect(); err != nil {
		n.log.Warn("connect", zap.Error(err))
		n.status = transport.StatusDisconnected
		n.failures++
		n.scheduleReconnect()
	}
}

func (n *Negotiator) scheduleReconnect() {
	if n.forever {
		n.log.Info("host closed for good, not reconnecting")
		n.exit = exitClose
		return
	}
	delay := n.delegate.ReconnectDelay(n.failures, time.Since(n.lostAt))
	n.log.Debug("reconnecting", zap.Int("failures", n.failures), zap.Duration("delay", delay))
	n.inbox.PostAfter(reconnectKey, delay, reconnect{})
}

func (n *Negotiator) onSlotEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventStatus:
		n.onStatus(ev.Status)
	case transport.EventMessage:
		if n.status != transport.StatusConnected || n.yielded {
			return
		}
		if ev.Err != nil {
			n.violation(ev.Err.Error())
			return
		}
		if n.accepted {
			n.onHostMessage(ev.Message)
		} else {
			n.negotiate(ev.Message)
		}
	case transport.EventDoneReceiving:
		if n.tearingDown {
			n.drop()
		}
	}
}

func (n *Negotiator) onStatus(st transport.Status) {
	switch {
	case st == transport.StatusConnected:
		if n.status != transport.StatusPending {
			return
		}
		n.status = transport.StatusConnected
		n.log.Debug("connected, negotiating")
		n.delegate.ConnectionStatusChanged(true)
		// Color before the claim, so a host still sees it as negotiation.
		n.send(protocol.PreferredColor{Slot: protocol.Unassigned, Color: n.cfg.Color})
		n.send(protocol.IAmClient{})
	case st.Terminal():
		n.teardown(st)
	}
}

func (n *Negotiator) teardown(st transport.Status) {
	if n.tearingDown || n.status == transport.StatusDisconnected {
		return
	}
	if n.status == transport.StatusPending {
		n.log.Debug("connect failed", zap.Stringer("status", st))
		_ = n.conn.Disconnect()
		n.status = transport.StatusDisconnected
		n.failures++
		n.scheduleReconnect()
		return
	}
	n.log.Info("connection lost", zap.Stringer("status", st))
	n.tearingDown = true
	n.inbox.PostAfter(graceKey, n.cfg.DisconnectGrace, disconnectGrace{})
}

// drop closes the connection, forgets the session and arms a reconnect.
func (n *Negotiator) drop() {
	n.inbox.Cancel(graceKey)
	if err := n.conn.Disconnect(); err != nil {
		n.log.Warn("disconnect", zap.Error(err))
	}
	wasConnected := n.status == transport.StatusConnected
	if n.welcomed {
		n.lostAt = time.Now()
	}
	n.status = transport.StatusDisconnected
	n.accepted, n.welcomed, n.hostConflict, n.yielded, n.tearingDown = false, false, false, false, false
	n.lastPriority = 0
	n.failures++
	if wasConnected {
		n.delegate.ConnectionStatusChanged(false)
	}
	n.scheduleReconnect()
}

func (n *Negotiator) violation(reason string) {
	n.log.Warn("protocol violation from host", zap.String("reason", reason))
	n.drop()
}

func (n *Negotiator) send(m protocol.Message) {
	if err := n.conn.Send(m); err != nil {
		n.log.Warn("send failed", zap.String("kind", string(m.Kind())), zap.Error(err))
		n.teardown(transport.StatusBroken)
	}
}
