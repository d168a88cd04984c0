package host

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

// onCommand runs a command for the lobby owner's local player. Commands are
// validated the same way client messages are, but a rejected command is only
// logged.
func (c *Coordinator) onCommand(m Msg) {
	owner := c.lobby.OwnerSlot
	log := c.log.With(zap.Int("slot", owner))
	var err error
	switch cmd := m.(type) {
	case Vote:
		var events []engine.Event
		if events, err = c.lobby.Vote(owner, cmd.Mode); err == nil {
			c.apply(events)
		}
	case Unvote:
		var events []engine.Event
		if events, err = c.lobby.Unvote(owner, cmd.Mode); err == nil {
			c.apply(events)
		}
	case SetName:
		var name string
		if name, err = c.lobby.SetName(owner, cmd.Name); err == nil {
			c.broadcast(protocol.PlayerName{Slot: owner, Name: name})
			c.broadcast(protocol.Host{Slot: owner, Name: name})
		}
	case SetStatus:
		err = c.setStatus(owner, cmd.Status)
	case SendText:
		if cmd.Text != "" {
			c.broadcast(protocol.TextMessage{Slot: owner, Text: cmd.Text})
		}
	case OfferAuthToken:
		err = c.offerToken(owner, cmd.Mode, cmd.Token)
	case RevokeAuthToken:
		var events []engine.Event
		if events, err = c.lobby.RevokeToken(owner, cmd.Mode); err == nil {
			c.apply(events)
		}
	case SetColor:
		if err = c.lobby.SetColor(owner, cmd.Color); err == nil {
			c.broadcast(protocol.PreferredColor{Slot: owner, Color: cmd.Color})
		}
	case Kick:
		if p := c.peer(cmd.Slot); p != nil && p.status == transport.StatusConnected {
			log.Info("kicking player", zap.Int("kicked", cmd.Slot), zap.String("reason", cmd.Reason))
			c.kick(p, cmd.Reason)
		}
	case GetView:
		cmd.Reply <- c.view()
	default:
		log.Warn("unknown command", zap.Any("msg", m))
	}
	if err != nil {
		log.Warn("owner command rejected", zap.Error(err))
	}
}
