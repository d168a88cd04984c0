package client

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

var ErrUnexpected = errors.New("unexpected message from host")

// onHostMessage applies a message from the host that accepted us. Launch
// roles end lobby processing; everything else updates the mirror.
func (n *Negotiator) onHostMessage(m protocol.Message) {
	if _, ok := protocol.Target(m); ok {
		if !n.welcomed {
			n.violation(fmt.Sprintf("%s before welcome", m.Kind()))
			return
		}
		n.log.Info("launching", zap.String("role", string(m.Kind())))
		n.delegate.Launched(m)
		n.exit = exitHandoff
		return
	}
	if err := n.apply(m); err != nil {
		n.violation(err.Error())
	}
}

func (n *Negotiator) apply(m protocol.Message) error {
	l := n.mirror
	switch msg := m.(type) {
	case protocol.YouAreClient:
		// start of a rewelcome; the snapshot overwrites in place
	case protocol.Host:
		l.OwnerSlot, l.OwnerName = msg.Slot, msg.Name
		n.delegate.HostIdentified(msg.Slot, msg.Name)
	case protocol.LobbyStatus:
		l.Name = msg.Name
		l.Created = time.Now().Add(-time.Duration(msg.AgeSeconds) * time.Second)
		if msg.MaxPlayers != len(l.Players) {
			l.Resize(msg.MaxPlayers)
		}
	case protocol.TotalPlayerSlots:
		l.Resize(msg.Count)
	case protocol.PersonalPlayerSlot:
		if !l.ValidSlot(msg.Slot) {
			return fmt.Errorf("%w: personal slot %d", engine.ErrSlotOutOfRange, msg.Slot)
		}
		n.slot = msg.Slot
	case protocol.GameModeList:
		l.Modes = l.Modes[:0]
		for _, mi := range msg.Modes {
			l.Modes = append(l.Modes, engine.GameMode{Name: mi.Name, MinPlayers: mi.MinPlayers, MaxPlayers: mi.MaxPlayers, NeedsAuth: mi.NeedsAuth})
		}
	case protocol.GameModeXML:
		for i := range l.Modes {
			if l.Modes[i].Name == msg.Mode {
				l.Modes[i].XML = msg.XML
				return nil
			}
		}
		return fmt.Errorf("%w: %q", engine.ErrUnknownMode, msg.Mode)
	case protocol.PlayerName:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Name = msg.Name })
	case protocol.PersonalNonce:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Nonce = msg.Nonce })
	case protocol.PreferredColor:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Color = msg.Color })
	case protocol.Active:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Status = engine.StatusActive })
	case protocol.Inactive:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Status = engine.StatusInactive })
	case protocol.InGame:
		return n.withPlayer(msg.Slot, func(p *engine.Player) { p.Status = engine.StatusInGame })
	case protocol.PlayerQuit:
		return n.withPlayer(msg.Slot, func(p *engine.Player) {
			*p = engine.Player{Status: engine.StatusNotConnected, Votes: map[string]bool{}}
		})
	case protocol.PlayersInLobby:
		present := engine.NewSet(msg.Slots...)
		for _, s := range msg.Slots {
			if !l.ValidSlot(s) {
				return fmt.Errorf("%w: roster slot %d", engine.ErrSlotOutOfRange, s)
			}
		}
		for i := range l.Players {
			if l.Players[i].InLobby && !present.Has(i) {
				l.Players[i] = engine.Player{Status: engine.StatusNotConnected, Votes: map[string]bool{}}
			}
			l.Players[i].InLobby = present.Has(i)
		}
	case protocol.PlayerStatuses:
		if len(msg.Statuses) != len(l.Players) {
			return fmt.Errorf("%w: %d statuses for %d slots", ErrUnexpected, len(msg.Statuses), len(l.Players))
		}
		for i, st := range msg.Statuses {
			l.Players[i].Status = st
		}
	case protocol.GameModeVotes:
		if _, ok := l.Mode(msg.Mode); !ok {
			return fmt.Errorf("%w: %q", engine.ErrUnknownMode, msg.Mode)
		}
		voters := engine.NewSet(msg.Slots...)
		for i := range l.Players {
			l.Players[i].Votes[msg.Mode] = voters.Has(i)
		}
	case protocol.AuthToken:
		a, err := n.auth(msg.Mode)
		if err != nil {
			return err
		}
		a.ByPlayer[msg.Slot] = msg.Token
		a.Owner = msg.Slot
	case protocol.AuthTokenRevoke:
		a, err := n.auth(msg.Mode)
		if err != nil {
			return err
		}
		delete(a.ByPlayer, msg.Slot)
		if a.Owner == msg.Slot {
			a.Owner = engine.NoSlot
		}
	case protocol.LaunchCountdown:
		l.Countdowns[msg.Number] = &engine.Countdown{
			Number:  msg.Number,
			Mode:    msg.Mode,
			Members: engine.NewSet(msg.Included...),
			Status:  msg.Status,
			Delay:   time.Duration(msg.DelayMillis) * time.Millisecond,
			Attempt: msg.Attempt,
		}
	case protocol.LaunchHalted:
		if c, ok := l.Countdowns[msg.Number]; ok {
			c.Status = engine.CountdownHalted
		}
	case protocol.LaunchAborted:
		delete(l.Countdowns, msg.Number)
	case protocol.LaunchFailed:
		n.log.Warn("host could not launch", zap.Int("number", msg.Number), zap.String("mode", msg.Mode))
	case protocol.TextMessage:
		n.delegate.TextMessage(msg.Slot, msg.Text)
	case protocol.Kick:
		if msg.Slot == n.slot {
			n.log.Warn("kicked by host", zap.String("reason", msg.Reason))
			n.delegate.Kicked(msg.Reason)
		}
	case protocol.ServerClosing:
		n.log.Info("host closing")
		n.delegate.ServerClosing(false)
	case protocol.ServerClosingForever:
		n.log.Info("host closing for good")
		n.forever = true
		n.delegate.ServerClosing(true)
	case protocol.WelcomeToServer:
		return n.onWelcome()
	default:
		return fmt.Errorf("%w: %s", ErrUnexpected, m.Kind())
	}
	return nil
}

func (n *Negotiator) withPlayer(slot int, f func(p *engine.Player)) error {
	if !n.mirror.ValidSlot(slot) {
		return fmt.Errorf("%w: %d", engine.ErrSlotOutOfRange, slot)
	}
	f(&n.mirror.Players[slot])
	return nil
}

func (n *Negotiator) auth(mode string) (*engine.AuthState, error) {
	if _, ok := n.mirror.Mode(mode); !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownMode, mode)
	}
	a, ok := n.mirror.Auth[mode]
	if !ok {
		a = &engine.AuthState{ByPlayer: map[int]string{}, Owner: engine.NoSlot}
		n.mirror.Auth[mode] = a
	}
	return a, nil
}

// onWelcome completes the handshake. Our name and nonce go out only on the
// first welcome of a connection; a rewelcome just refreshes the delegate.
func (n *Negotiator) onWelcome() error {
	if n.slot == engine.NoSlot {
		return fmt.Errorf("%w: welcome without a slot", ErrUnexpected)
	}
	if !n.welcomed {
		n.welcomed = true
		n.failures = 0
		n.log.Info("welcomed", zap.Int("slot", n.slot), zap.String("lobby", n.mirror.Name))
		me := &n.mirror.Players[n.slot]
		me.Nonce = n.cfg.Nonce
		if n.cfg.Name != "" {
			me.Name = n.cfg.Name
			n.send(protocol.PlayerName{Slot: n.slot, Name: n.cfg.Name})
		}
		n.send(protocol.PersonalNonce{Slot: n.slot, Nonce: n.cfg.Nonce})
	}
	n.delegate.Welcomed(n.mirror.Clone(), n.slot)
	return nil
}
