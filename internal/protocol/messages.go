// Package protocol defines the lobby protocol's closed message catalogue.
// Every message kind is its own Go type; Message is sealed so the set cannot
// grow outside this package.
package protocol

import "github.com/DoyleJ11/lobbysync/internal/engine"

type Kind string

const (
	KindIAmHost      Kind = "I_AM_HOST"
	KindIAmClient    Kind = "I_AM_CLIENT"
	KindYouAreClient Kind = "YOU_ARE_CLIENT"
	KindHostPriority Kind = "HOST_PRIORITY"

	KindPersonalNonce      Kind = "PERSONAL_NONCE"
	KindPlayerName         Kind = "PLAYER_NAME"
	KindTotalPlayerSlots   Kind = "TOTAL_PLAYER_SLOTS"
	KindPersonalPlayerSlot Kind = "PERSONAL_PLAYER_SLOT"
	KindLobbyStatus        Kind = "LOBBY_STATUS"
	KindPlayersInLobby     Kind = "PLAYERS_IN_LOBBY"
	KindPlayerStatuses     Kind = "PLAYER_STATUSES"
	KindHost               Kind = "HOST"
	KindWelcomeToServer    Kind = "WELCOME_TO_SERVER"
	KindRewelcomeRequest   Kind = "REWELCOME_REQUEST"

	KindGameModeList    Kind = "GAME_MODE_LIST"
	KindGameModeXML     Kind = "GAME_MODE_XML"
	KindGameModeVotes   Kind = "GAME_MODE_VOTES"
	KindVote            Kind = "GAME_MODE_VOTE"
	KindUnvote          Kind = "GAME_MODE_UNVOTE"
	KindAuthToken       Kind = "GAME_MODE_AUTHORIZATION_TOKEN"
	KindAuthTokenRevoke Kind = "GAME_MODE_AUTHORIZATION_TOKEN_REVOKE"

	KindActive               Kind = "ACTIVE"
	KindInactive             Kind = "INACTIVE"
	KindInGame               Kind = "IN_GAME"
	KindKick                 Kind = "KICK"
	KindPlayerQuit           Kind = "PLAYER_QUIT"
	KindServerClosing        Kind = "SERVER_CLOSING"
	KindServerClosingForever Kind = "SERVER_CLOSING_FOREVER"
	KindTextMessage          Kind = "TEXT_MESSAGE"
	KindPreferredColor       Kind = "PREFERRED_COLOR"

	KindLaunchCountdown           Kind = "GAME_MODE_LAUNCH_COUNTDOWN"
	KindLaunchAborted             Kind = "GAME_MODE_LAUNCH_ABORTED"
	KindLaunchHalted              Kind = "GAME_MODE_LAUNCH_HALTED"
	KindLaunchFailed              Kind = "GAME_MODE_LAUNCH_FAILED"
	KindLaunchAsAbsent            Kind = "LAUNCH_AS_ABSENT"
	KindLaunchAsDirectClient      Kind = "LAUNCH_AS_DIRECT_CLIENT"
	KindLaunchAsDirectHost        Kind = "LAUNCH_AS_DIRECT_HOST"
	KindLaunchAsMatchseekerClient Kind = "LAUNCH_AS_MATCHSEEKER_CLIENT"
	KindLaunchAsMatchseekerHost   Kind = "LAUNCH_AS_MATCHSEEKER_HOST"
)

// Unassigned stands in for a slot index the sender does not know yet, e.g. a
// preferred color sent during negotiation.
const Unassigned = -1

type Message interface {
	Kind() Kind
	isMessage()
}

// Negotiation

type IAmHost struct{}
type IAmClient struct{}
type YouAreClient struct{}

type HostPriority struct {
	Value int64 `json:"value"`
}

// Identity and sync

type PersonalNonce struct {
	Slot  int    `json:"slot" validate:"gte=0"`
	Nonce string `json:"nonce" validate:"required,max=64"`
}

type PlayerName struct {
	Slot int    `json:"slot" validate:"gte=0"`
	Name string `json:"name" validate:"required,max=128"`
}

type TotalPlayerSlots struct {
	Count int `json:"count" validate:"gte=1,lte=256"`
}

type PersonalPlayerSlot struct {
	Slot int `json:"slot" validate:"gte=0"`
}

type LobbyStatus struct {
	Name       string `json:"name"`
	AgeSeconds int64  `json:"age_seconds" validate:"gte=0"`
	Population int    `json:"population" validate:"gte=0"`
	MaxPlayers int    `json:"max_players" validate:"gte=1"`
}

type PlayersInLobby struct {
	Slots []int `json:"slots" validate:"dive,gte=0"`
}

type PlayerStatuses struct {
	Statuses []engine.Status `json:"statuses" validate:"dive,oneof=NOT_CONNECTED ACTIVE INACTIVE IN_GAME"`
}

type Host struct {
	Slot int    `json:"slot" validate:"gte=0"`
	Name string `json:"name"`
}

type WelcomeToServer struct{}
type RewelcomeRequest struct{}

// Content

type ModeInfo struct {
	Name       string `json:"name" validate:"required,max=64"`
	MinPlayers int    `json:"min_players" validate:"gte=1"`
	MaxPlayers int    `json:"max_players" validate:"gtefield=MinPlayers"`
	NeedsAuth  bool   `json:"needs_auth,omitempty"`
}

type GameModeList struct {
	Modes []ModeInfo `json:"modes" validate:"dive"`
}

type GameModeXML struct {
	Mode string `json:"mode" validate:"required"`
	XML  string `json:"xml"`
}

type GameModeVotes struct {
	Mode  string `json:"mode" validate:"required"`
	Slots []int  `json:"slots" validate:"dive,gte=0"`
}

type Vote struct {
	Slot int    `json:"slot" validate:"gte=0"`
	Mode string `json:"mode" validate:"required"`
}

type Unvote struct {
	Slot int    `json:"slot" validate:"gte=0"`
	Mode string `json:"mode" validate:"required"`
}

type AuthToken struct {
	Mode  string `json:"mode" validate:"required"`
	Slot  int    `json:"slot" validate:"gte=0"`
	Token string `json:"token" validate:"required,max=4096"`
}

type AuthTokenRevoke struct {
	Mode string `json:"mode" validate:"required"`
	Slot int    `json:"slot" validate:"gte=0"`
}

// Presence

type Active struct {
	Slot int `json:"slot" validate:"gte=0"`
}

type Inactive struct {
	Slot int `json:"slot" validate:"gte=0"`
}

type InGame struct {
	Slot int `json:"slot" validate:"gte=0"`
}

type Kick struct {
	Slot   int    `json:"slot" validate:"gte=0"`
	Reason string `json:"reason"`
}

type PlayerQuit struct {
	Slot int `json:"slot" validate:"gte=0"`
}

type ServerClosing struct{}
type ServerClosingForever struct{}

type TextMessage struct {
	Slot int    `json:"slot" validate:"gte=0"`
	Text string `json:"text" validate:"required,max=1024"`
}

type PreferredColor struct {
	Slot  int          `json:"slot" validate:"gte=-1"`
	Color engine.Color `json:"color" validate:"lte=16777215"`
}

// Launch

type LaunchCountdown struct {
	Number      int                    `json:"number" validate:"gte=1"`
	Mode        string                 `json:"mode" validate:"required"`
	Included    []int                  `json:"included" validate:"required,dive,gte=0"`
	Status      engine.CountdownStatus `json:"status" validate:"oneof=ACTIVE HALTED"`
	DelayMillis int64                  `json:"delay_ms" validate:"gte=0"`
	Attempt     int                    `json:"attempt" validate:"gte=0"`
}

type LaunchAborted struct {
	Number int `json:"number" validate:"gte=1"`
}

type LaunchHalted struct {
	Number int `json:"number" validate:"gte=1"`
}

type LaunchFailed struct {
	Number int    `json:"number" validate:"gte=1"`
	Mode   string `json:"mode" validate:"required"`
}

// LaunchTarget is carried by every launch role message.
type LaunchTarget struct {
	Number   int    `json:"number" validate:"gte=1"`
	Mode     string `json:"mode" validate:"required"`
	Included []int  `json:"included" validate:"required,dive,gte=0"`
}

// Endpoint is where launched players meet.
type Endpoint struct {
	SessionNonce string `json:"session_nonce" validate:"required"`
	Address      string `json:"address" validate:"required"`
}

type LaunchAsAbsent struct {
	LaunchTarget
}

type LaunchAsDirectClient struct {
	LaunchTarget
	Endpoint
}

type LaunchAsDirectHost struct {
	LaunchTarget
	Endpoint
}

type LaunchAsMatchseekerClient struct {
	LaunchTarget
	Endpoint
}

type LaunchAsMatchseekerHost struct {
	LaunchTarget
	Endpoint
	EditKey string `json:"edit_key" validate:"required"`
}

// StatusMessage returns the presence message announcing st for slot.
func StatusMessage(slot int, st engine.Status) (Message, bool) {
	switch st {
	case engine.StatusActive:
		return Active{Slot: slot}, true
	case engine.StatusInactive:
		return Inactive{Slot: slot}, true
	case engine.StatusInGame:
		return InGame{Slot: slot}, true
	}
	return nil, false
}

// Target returns the launch target of any launch role message.
func Target(m Message) (LaunchTarget, bool) {
	switch v := m.(type) {
	case LaunchAsAbsent:
		return v.LaunchTarget, true
	case LaunchAsDirectClient:
		return v.LaunchTarget, true
	case LaunchAsDirectHost:
		return v.LaunchTarget, true
	case LaunchAsMatchseekerClient:
		return v.LaunchTarget, true
	case LaunchAsMatchseekerHost:
		return v.LaunchTarget, true
	}
	return LaunchTarget{}, false
}

func (IAmHost) Kind() Kind                   { return KindIAmHost }
func (IAmClient) Kind() Kind                 { return KindIAmClient }
func (YouAreClient) Kind() Kind              { return KindYouAreClient }
func (HostPriority) Kind() Kind              { return KindHostPriority }
func (PersonalNonce) Kind() Kind             { return KindPersonalNonce }
func (PlayerName) Kind() Kind                { return KindPlayerName }
func (TotalPlayerSlots) Kind() Kind          { return KindTotalPlayerSlots }
func (PersonalPlayerSlot) Kind() Kind        { return KindPersonalPlayerSlot }
func (LobbyStatus) Kind() Kind               { return KindLobbyStatus }
func (PlayersInLobby) Kind() Kind            { return KindPlayersInLobby }
func (PlayerStatuses) Kind() Kind            { return KindPlayerStatuses }
func (Host) Kind() Kind                      { return KindHost }
func (WelcomeToServer) Kind() Kind           { return KindWelcomeToServer }
func (RewelcomeRequest) Kind() Kind          { return KindRewelcomeRequest }
func (GameModeList) Kind() Kind              { return KindGameModeList }
func (GameModeXML) Kind() Kind               { return KindGameModeXML }
func (GameModeVotes) Kind() Kind             { return KindGameModeVotes }
func (Vote) Kind() Kind                      { return KindVote }
func (Unvote) Kind() Kind                    { return KindUnvote }
func (AuthToken) Kind() Kind                 { return KindAuthToken }
func (AuthTokenRevoke) Kind() Kind           { return KindAuthTokenRevoke }
func (Active) Kind() Kind                    { return KindActive }
func (Inactive) Kind() Kind                  { return KindInactive }
func (InGame) Kind() Kind                    { return KindInGame }
func (Kick) Kind() Kind                      { return KindKick }
func (PlayerQuit) Kind() Kind                { return KindPlayerQuit }
func (ServerClosing) Kind() Kind             { return KindServerClosing }
func (ServerClosingForever) Kind() Kind      { return KindServerClosingForever }
func (TextMessage) Kind() Kind               { return KindTextMessage }
func (PreferredColor) Kind() Kind            { return KindPreferredColor }
func (LaunchCountdown) Kind() Kind           { return KindLaunchCountdown }
func (LaunchAborted) Kind() Kind             { return KindLaunchAborted }
func (LaunchHalted) Kind() Kind              { return KindLaunchHalted }
func (LaunchFailed) Kind() Kind              { return KindLaunchFailed }
func (LaunchAsAbsent) Kind() Kind            { return KindLaunchAsAbsent }
func (LaunchAsDirectClient) Kind() Kind      { return KindLaunchAsDirectClient }
func (LaunchAsDirectHost) Kind() Kind        { return KindLaunchAsDirectHost }
func (LaunchAsMatchseekerClient) Kind() Kind { return KindLaunchAsMatchseekerClient }
func (LaunchAsMatchseekerHost) Kind() Kind   { return KindLaunchAsMatchseekerHost }

func (IAmHost) isMessage()                   {}
func (IAmClient) isMessage()                 {}
func (YouAreClient) isMessage()              {}
func (HostPriority) isMessage()              {}
func (PersonalNonce) isMessage()             {}
func (PlayerName) isMessage()                {}
func (TotalPlayerSlots) isMessage()          {}
func (PersonalPlayerSlot) isMessage()        {}
func (LobbyStatus) isMessage()               {}
func (PlayersInLobby) isMessage()            {}
func (PlayerStatuses) isMessage()            {}
func (Host) isMessage()                      {}
func (WelcomeToServer) isMessage()           {}
func (RewelcomeRequest) isMessage()          {}
func (GameModeList) isMessage()              {}
func (GameModeXML) isMessage()               {}
func (GameModeVotes) isMessage()             {}
func (Vote) isMessage()                      {}
func (Unvote) isMessage()                    {}
func (AuthToken) isMessage()                 {}
func (AuthTokenRevoke) isMessage()           {}
func (Active) isMessage()                    {}
func (Inactive) isMessage()                  {}
func (InGame) isMessage()                    {}
func (Kick) isMessage()                      {}
func (PlayerQuit) isMessage()                {}
func (ServerClosing) isMessage()             {}
func (ServerClosingForever) isMessage()      {}
func (TextMessage) isMessage()               {}
func (PreferredColor) isMessage()            {}
func (LaunchCountdown) isMessage()           {}
func (LaunchAborted) isMessage()             {}
func (LaunchHalted) isMessage()              {}
func (LaunchFailed) isMessage()              {}
func (LaunchAsAbsent) isMessage()            {}
func (LaunchAsDirectClient) isMessage()      {}
func (LaunchAsDirectHost) isMessage()        {}
func (LaunchAsMatchseekerClient) isMessage() {}
func (LaunchAsMatchseekerHost) isMessage()   {}
