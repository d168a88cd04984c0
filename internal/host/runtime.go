package host

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

var ErrBadStatus = errors.New("status cannot be announced")

// onRuntime handles messages from an accepted client. Anything that is not a
// valid client-to-host message, or that names a slot other than the sender's,
// gets the sender kicked.
func (c *Coordinator) onRuntime(p *peer, m protocol.Message) {
	slot := p.index
	switch msg := m.(type) {
	case protocol.PlayerName:
		if !c.own(p, msg.Slot) {
			return
		}
		name, err := c.lobby.SetName(slot, msg.Name)
		if err != nil {
			c.violation(p, err.Error())
			return
		}
		c.broadcastExcept(slot, protocol.PlayerName{Slot: slot, Name: name})
	case protocol.PersonalNonce:
		if !c.own(p, msg.Slot) {
			return
		}
		if err := c.lobby.SetNonce(slot, msg.Nonce); err != nil {
			c.violation(p, err.Error())
			return
		}
		if c.cfg.BroadcastNonces {
			c.broadcastExcept(slot, msg)
		}
	case protocol.Vote:
		if c.own(p, msg.Slot) {
			events, err := c.lobby.Vote(slot, msg.Mode)
			c.applyOrKick(p, events, err)
		}
	case protocol.Unvote:
		if c.own(p, msg.Slot) {
			events, err := c.lobby.Unvote(slot, msg.Mode)
			c.applyOrKick(p, events, err)
		}
	case protocol.Active:
		if c.own(p, msg.Slot) {
			c.setStatus(slot, engine.StatusActive)
		}
	case protocol.Inactive:
		if c.own(p, msg.Slot) {
			c.setStatus(slot, engine.StatusInactive)
		}
	case protocol.InGame:
		if c.own(p, msg.Slot) {
			c.setStatus(slot, engine.StatusInGame)
		}
	case protocol.AuthToken:
		if !c.own(p, msg.Slot) {
			return
		}
		if err := c.offerToken(slot, msg.Mode, msg.Token); err != nil {
			c.violation(p, err.Error())
		}
	case protocol.AuthTokenRevoke:
		if c.own(p, msg.Slot) {
			events, err := c.lobby.RevokeToken(slot, msg.Mode)
			c.applyOrKick(p, events, err)
		}
	case protocol.TextMessage:
		if !c.own(p, msg.Slot) {
			return
		}
		c.broadcastExcept(slot, msg)
		c.delegate.TextMessage(slot, msg.Text)
	case protocol.PreferredColor:
		// Unassigned is what a client sends before it knows its slot.
		if msg.Slot != protocol.Unassigned && !c.own(p, msg.Slot) {
			return
		}
		_ = c.lobby.SetColor(slot, msg.Color)
		c.broadcastExcept(slot, protocol.PreferredColor{Slot: slot, Color: msg.Color})
	case protocol.RewelcomeRequest:
		c.log.Debug("rewelcome requested", zap.Int("slot", slot))
		c.welcome(p)
	case protocol.PlayerQuit:
		if c.own(p, msg.Slot) {
			c.log.Info("client quit", zap.Int("slot", slot))
			c.drop(p)
		}
	default:
		c.violation(p, fmt.Sprintf("unexpected %s from client", m.Kind()))
	}
}

func (c *Coordinator) own(p *peer, slot int) bool {
	if slot == p.index {
		return true
	}
	c.violation(p, fmt.Sprintf("slot %d spoke for slot %d", p.index, slot))
	return false
}

func (c *Coordinator) applyOrKick(p *peer, events []engine.Event, err error) {
	if err != nil {
		c.violation(p, err.Error())
		return
	}
	c.apply(events)
}

// setStatus relays the status change before the countdown consequences.
func (c *Coordinator) setStatus(slot int, st engine.Status) error {
	relay, ok := protocol.StatusMessage(slot, st)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadStatus, st)
	}
	events, err := c.lobby.SetStatus(slot, st)
	if err != nil {
		return err
	}
	c.broadcastExcept(slot, relay)
	c.apply(events)
	return nil
}

// offerToken records token when the verifier accepts it. A token that fails
// verification is ignored rather than treated as a violation.
func (c *Coordinator) offerToken(slot int, mode, token string) error {
	if _, ok := c.lobby.Mode(mode); !ok {
		return fmt.Errorf("%w: %q", engine.ErrUnknownMode, mode)
	}
	if !c.delegate.VerifyAuthToken(mode, slot, token) {
		c.log.Info("authorization token rejected", zap.Int("slot", slot), zap.String("mode", mode))
		return nil
	}
	events, err := c.lobby.OfferToken(slot, mode, token)
	if err != nil {
		return err
	}
	c.apply(events)
	return nil
}
