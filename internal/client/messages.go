package client

import (
	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/mailbox"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

// Msg is anything the negotiator's mailbox accepts. Exported messages are
// local user actions; they are forwarded only while welcomed and connected.
type Msg interface{ isClientMsg() }

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

type RequestRewelcome struct{}

// Stop leaves the lobby and closes the connection.
type Stop struct{}

// Handoff stops lobby processing but leaves the connection open for the
// delegate.
type Handoff struct{}

type GetView struct {
	Reply chan View
}

type start struct{}

type slotEvent struct{ ev transport.Event }

type disconnectGrace struct{}

type reconnect struct{}

func (Vote) isClientMsg()             {}
func (Unvote) isClientMsg()           {}
func (SetName) isClientMsg()          {}
func (SetStatus) isClientMsg()        {}
func (SendText) isClientMsg()         {}
func (OfferAuthToken) isClientMsg()   {}
func (RevokeAuthToken) isClientMsg()  {}
func (SetColor) isClientMsg()         {}
func (RequestRewelcome) isClientMsg() {}
func (Stop) isClientMsg()             {}
func (Handoff) isClientMsg()          {}
func (GetView) isClientMsg()          {}
func (start) isClientMsg()            {}
func (slotEvent) isClientMsg()        {}
func (disconnectGrace) isClientMsg()  {}
func (reconnect) isClientMsg()        {}

var (
	graceKey     = mailbox.Key{Kind: "disconnect-grace"}
	reconnectKey = mailbox.Key{Kind: "reconnect"}
)
