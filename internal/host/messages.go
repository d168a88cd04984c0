package host

import (
	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

// Msg is anything the coordinator's mailbox accepts. The exported ones are
// commands for the lobby owner's local player; the rest are internal events.
type Msg interface{ isHostMsg() }

type Vote struct{ Mode string }

type Unvote struct{ Mode string }

type SetName struct{ Name string }

type SetStatus struct{ Status engine.Status }

type SendText struct{ Text string }

type OfferAuthToken struct {
	Mode  string
	Token string
}

type RevokeAuthToken struct{ Mode string }

type SetColor struct{ Color engine.Color }

type Kick struct {
	Slot   int
	Reason string
}

// Stop is ordered after everything already queued. Forever tells clients not
// to come back.
type Stop struct{ Forever bool }

// GetView reflects internal state without data races.
type GetView struct {
	Reply chan View
}

type start struct{}

type slotEvent struct {
	slot int
	ev   transport.Event
}

type negotiationTimeout struct{ slot int }

type disconnectGrace struct{ slot int }

type reconnect struct{ slot int }

type countdownExpired struct{ number int }

func (Vote) isHostMsg()               {}
func (Unvote) isHostMsg()             {}
func (SetName) isHostMsg()            {}
func (SetStatus) isHostMsg()          {}
func (SendText) isHostMsg()           {}
func (OfferAuthToken) isHostMsg()     {}
func (RevokeAuthToken) isHostMsg()    {}
func (SetColor) isHostMsg()           {}
func (Kick) isHostMsg()               {}
func (Stop) isHostMsg()               {}
func (GetView) isHostMsg()            {}
func (start) isHostMsg()              {}
func (slotEvent) isHostMsg()          {}
func (negotiationTimeout) isHostMsg() {}
func (disconnectGrace) isHostMsg()    {}
func (reconnect) isHostMsg()          {}
func (countdownExpired) isHostMsg()   {}

func negotiationKey(slot int) mailbox.Key { return mailbox.Key{Kind: "negotiation", ID: slot} }
func graceKey(slot int) mailbox.Key       { return mailbox.Key{Kind: "disconnect-grace", ID: slot} }
func reconnectKey(slot int) mailbox.Key   { return mailbox.Key{Kind: "reconnect", ID: slot} }
func countdownKey(number int) mailbox.Key { return mailbox.Key{Kind: "countdown", ID: number} }
