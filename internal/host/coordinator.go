// Package host runs the lobby's authoritative side: it owns the shared lobby
// state, negotiates each connection slot, keeps every accepted client in sync
// and orchestrates launch countdowns.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

var ErrStopped = errors.New("coordinator stopped")

type Config struct {
	LobbyName  string
	OwnerName  string
	OwnerSlot  int
	MaxPlayers int

	NegotiationTimeout time.Duration
	DisconnectGrace    time.Duration
	ReconnectDelay     time.Duration
	CountdownDelay     time.Duration
	RetryBackoff       time.Duration

	// BroadcastNonces relays each client's personal nonce to the others.
	BroadcastNonces bool
}

// LaunchRequest describes an expired countdown the delegate must find a
// game host for.
type LaunchRequest struct {
	Number   int
	Mode     string
	Included []int
	Attempt  int
}

// HostingInfo is how the included players reach the launched game.
type HostingInfo struct {
	HostSlot     int
	Matchseeker  bool
	SessionNonce string
	Address      string
	EditKey      string
}

// Delegate is the application side of a coordinator. Its methods run on the
// coordinator goroutine and must not block.
type Delegate interface {
	GameModes() []engine.GameMode
	HostPriority() int64
	DefaultColor(slot int) engine.Color
	HostingInfo(req LaunchRequest) (HostingInfo, error)
	VerifyAuthToken(mode string, slot int, token string) bool
	// ShouldBecomeClient reports that the peer on slot outranked us in host
	// negotiation; the application should tear this lobby down and join as a
	// client.
	ShouldBecomeClient(slot int)
	// Launched delivers the owner's own launch role.
	Launched(m protocol.Message)
	TextMessage(slot int, text string)
}

// SlotFactory builds the connection slot for index. The coordinator passes a
// handler that feeds the slot's events into its mailbox.
type SlotFactory func(index int, h transport.Handler) transport.Slot

type Coordinator struct {
	cfg      Config
	delegate Delegate
	log      *zap.Logger

	inbox *mailbox.Mailbox[Msg]
	lobby *engine.Lobby
	peers []*peer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config, d Delegate, newSlot SlotFactory, log *zap.Logger) (*Coordinator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l, err := engine.NewLobby(engine.Settings{
		SessionNonce:   uuid.NewString(),
		LobbyNonce:     uuid.NewString(),
		Name:           cfg.LobbyName,
		MaxPlayers:     cfg.MaxPlayers,
		Modes:          d.GameModes(),
		OwnerSlot:      cfg.OwnerSlot,
		OwnerName:      cfg.OwnerName,
		Created:        time.Now(),
		CountdownDelay: cfg.CountdownDelay,
		RetryBackoff:   cfg.RetryBackoff,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		cfg:      cfg,
		delegate: d,
		log:      log.With(zap.String("lobby", cfg.LobbyName)),
		inbox:    mailbox.New[Msg](),
		lobby:    l,
		peers:    make([]*peer, cfg.MaxPlayers),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for i := range c.peers {
		if i == cfg.OwnerSlot {
			continue
		}
		index := i
		p := &peer{index: index}
		p.conn = newSlot(index, func(ev transport.Event) {
			c.inbox.Post(slotEvent{slot: index, ev: ev})
		})
		c.peers[i] = p
	}

	c.inbox.Post(start{})
	go c.loop()
	return c, nil
}

// Post enqueues m. It reports false once the coordinator has stopped.
func (c *Coordinator) Post(m Msg) bool { return c.inbox.Post(m) }

// Stop broadcasts a closing notice after everything already queued, then
// disconnects every slot.
func (c *Coordinator) Stop(forever bool) { c.inbox.Post(Stop{Forever: forever}) }

// StopNow disconnects every slot without notice.
func (c *Coordinator) StopNow() { c.cancel() }

func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !c.inbox.Post(GetView{Reply: reply}) {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		m, err := c.inbox.Next(c.ctx)
		if err != nil {
			c.shutdown()
			return
		}
		switch msg := m.(type) {
		case start:
			c.log.Info("lobby open", zap.Int("max_players", c.cfg.MaxPlayers), zap.Int("owner_slot", c.cfg.OwnerSlot))
			for _, p := range c.peers {
				if p != nil {
					c.connect(p)
				}
			}
		case slotEvent:
			c.onSlotEvent(msg.slot, msg.ev)
		case negotiationTimeout:
			c.onNegotiationTimeout(msg.slot)
		case disconnectGrace:
			if p := c.peer(msg.slot); p != nil && p.tearingDown {
				c.log.Debug("disconnect grace elapsed", zap.Int("slot", msg.slot))
				c.drop(p)
			}
		case reconnect:
			if p := c.peer(msg.slot); p != nil && p.status == transport.StatusDisconnected {
				c.connect(p)
			}
		case countdownExpired:
			c.onCountdownExpired(msg.number)
		case Stop:
			c.stop(msg.Forever)
			return
		default:
			c.onCommand(m)
		}
	}
}

func (c *Coordinator) stop(forever bool) {
	var notice protocol.Message = protocol.ServerClosing{}
	if forever {
		notice = protocol.ServerClosingForever{}
	}
	c.log.Info("lobby closing", zap.Bool("forever", forever))
	c.broadcast(notice)
	c.shutdown()
}

func (c *Coordinator) shutdown() {
	c.inbox.Close()
	c.cancel()
	var err error
	for _, p := range c.peers {
		if p != nil {
			err = multierr.Append(err, p.conn.Disconnect())
		}
	}
	if err != nil {
		c.log.Warn("disconnecting slots", zap.Error(err))
	}
}

func (c *Coordinator) peer(slot int) *peer {
	if slot < 0 || slot >= len(c.peers) {
		return nil
	}
	return c.peers[slot]
}

func (c *Coordinator) connect(p *peer) {
	p.status = transport.StatusPending
	if err := p.conn.Connect(); err != nil {
		c.log.Warn("connect slot", zap.Int("slot", p.index), zap.Error(err))
		p.status = transport.StatusDisconnected
		c.scheduleReconnect(p)
	}
}

func (c *Coordinator) scheduleReconnect(p *peer) {
	c.inbox.PostAfter(reconnectKey(p.index), c.cfg.ReconnectDelay, reconnect{slot: p.index})
}
