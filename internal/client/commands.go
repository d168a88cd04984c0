package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

// onCommand forwards a local action to the host. Actions issued before the
// welcome or while disconnected are dropped, not queued.
func (n *Negotiator) onCommand(m Msg) {
	if !n.welcomed || n.tearingDown || n.status != transport.StatusConnected {
		n.log.Debug("not in a lobby, dropping command", zap.String("command", fmt.Sprintf("%T", m)))
		return
	}
	slot := n.slot
	me := &n.mirror.Players[slot]
	switch cmd := m.(type) {
	case Vote:
		n.send(protocol.Vote{Slot: slot, Mode: cmd.Mode})
	case Unvote:
		n.send(protocol.Unvote{Slot: slot, Mode: cmd.Mode})
	case SetName:
		n.cfg.Name = cmd.Name
		me.Name = cmd.Name
		n.send(protocol.PlayerName{Slot: slot, Name: cmd.Name})
	case SetStatus:
		relay, ok := protocol.StatusMessage(slot, cmd.Status)
		if !ok {
			n.log.Warn("status cannot be announced", zap.String("status", string(cmd.Status)))
			return
		}
		me.Status = cmd.Status
		n.send(relay)
	case SendText:
		n.send(protocol.TextMessage{Slot: slot, Text: cmd.Text})
	case OfferAuthToken:
		n.send(protocol.AuthToken{Mode: cmd.Mode, Slot: slot, Token: cmd.Token})
	case RevokeAuthToken:
		n.send(protocol.AuthTokenRevoke{Mode: cmd.Mode, Slot: slot})
	case SetColor:
		n.cfg.Color = cmd.Color
		me.Color = cmd.Color
		n.send(protocol.PreferredColor{Slot: slot, Color: cmd.Color})
	case RequestRewelcome:
		n.send(protocol.RewelcomeRequest{})
	}
}
