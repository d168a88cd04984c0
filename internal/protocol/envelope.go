package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrUnknownKind = errors.New("unknown message kind")
var ErrInvalidMessage = errors.New("invalid message")

// Envelope is the wire wrapper every message travels in.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the static content contract of m (non-empty fields, ranges).
// Checks that need lobby state, like slot bounds, belong to the receiver.
func Validate(m Message) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Kind(), err)
	}
	return nil
}

func Encode(m Message) (Envelope, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return Envelope{Type: m.Kind(), Payload: data}, nil
}

// Decode turns an envelope back into its typed message and validates it.
func Decode(env Envelope) (Message, error) {
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	m, err := dec(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, env.Type, err)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeAs[M Message](raw json.RawMessage) (Message, error) {
	var m M
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

var decoders = map[Kind]func(json.RawMessage) (Message, error){
	KindIAmHost:                   decodeAs[IAmHost],
	KindIAmClient:                 decodeAs[IAmClient],
	KindYouAreClient:              decodeAs[YouAreClient],
	KindHostPriority:              decodeAs[HostPriority],
	KindPersonalNonce:             decodeAs[PersonalNonce],
	KindPlayerName:                decodeAs[PlayerName],
	KindTotalPlayerSlots:          decodeAs[TotalPlayerSlots],
	KindPersonalPlayerSlot:        decodeAs[PersonalPlayerSlot],
	KindLobbyStatus:               decodeAs[LobbyStatus],
	KindPlayersInLobby:            decodeAs[PlayersInLobby],
	KindPlayerStatuses:            decodeAs[PlayerStatuses],
	KindHost:                      decodeAs[Host],
	KindWelcomeToServer:           decodeAs[WelcomeToServer],
	KindRewelcomeRequest:          decodeAs[RewelcomeRequest],
	KindGameModeList:              decodeAs[GameModeList],
	KindGameModeXML:               decodeAs[GameModeXML],
	KindGameModeVotes:             decodeAs[GameModeVotes],
	KindVote:                      decodeAs[Vote],
	KindUnvote:                    decodeAs[Unvote],
	KindAuthToken:                 decodeAs[AuthToken],
	KindAuthTokenRevoke:           decodeAs[AuthTokenRevoke],
	KindActive:                    decodeAs[Active],
	KindInactive:                  decodeAs[Inactive],
	KindInGame:                    decodeAs[InGame],
	KindKick:                      decodeAs[Kick],
	KindPlayerQuit:                decodeAs[PlayerQuit],
	KindServerClosing:             decodeAs[ServerClosing],
	KindServerClosingForever:      decodeAs[ServerClosingForever],
	KindTextMessage:               decodeAs[TextMessage],
	KindPreferredColor:            decodeAs[PreferredColor],
	KindLaunchCountdown:           decodeAs[LaunchCountdown],
	KindLaunchAborted:             decodeAs[LaunchAborted],
	KindLaunchHalted:              decodeAs[LaunchHalted],
	KindLaunchFailed:              decodeAs[LaunchFailed],
	KindLaunchAsAbsent:            decodeAs[LaunchAsAbsent],
	KindLaunchAsDirectClient:      decodeAs[LaunchAsDirectClient],
	KindLaunchAsDirectHost:        decodeAs[LaunchAsDirectHost],
	KindLaunchAsMatchseekerClient: decodeAs[LaunchAsMatchseekerClient],
	KindLaunchAsMatchseekerHost:   decodeAs[LaunchAsMatchseekerHost],
}
