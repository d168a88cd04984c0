package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrSlotOutOfRange = errors.New("slot out of range")
var ErrSlotNotInLobby = errors.New("slot not in lobby")
var ErrUnknownMode = errors.New("unknown game mode")
var ErrInvalidName = errors.New("invalid player name")
var ErrInvalidNonce = errors.New("invalid personal nonce")
var ErrInvalidSettings = errors.New("invalid lobby settings")

// NoSlot marks the absence of a slot, e.g. a game mode without a token owner.
const NoSlot = -1

const MaxNameLength = 32

type Status string

const (
	StatusNotConnected Status = "NOT_CONNECTED"
	StatusActive       Status = "ACTIVE"
	StatusInactive     Status = "INACTIVE"
	StatusInGame       Status = "IN_GAME"
)

type CountdownStatus string

const (
	CountdownActive  CountdownStatus = "ACTIVE"
	CountdownHalted  CountdownStatus = "HALTED"
	CountdownAborted CountdownStatus = "ABORTED"
	CountdownExpired CountdownStatus = "EXPIRED"
)

// Color is a packed 0xRRGGBB value.
type Color uint32

type GameMode struct {
	Name       string
	MinPlayers int
	MaxPlayers int
	NeedsAuth  bool
	XML        string
}

type Player struct {
	Name    string
	Nonce   string
	Status  Status
	InLobby bool
	Color   Color
	Votes   map[string]bool
}

// Set is a set of slot indexes.
type Set map[int]struct{}

func NewSet(slots ...int) Set {
	s := make(Set, len(slots))
	for _, slot := range slots {
		s[slot] = struct{}{}
	}
	return s
}

func (s Set) Has(slot int) bool {
	_, ok := s[slot]
	return ok
}

func (s Set) Sorted() []int {
	out := make([]int, 0, len(s))
	for slot := range s {
		out = append(out, slot)
	}
	slices.Sort(out)
	return out
}

type Countdown struct {
	Number  int
	Mode    string
	Members Set
	Status  CountdownStatus
	Delay   time.Duration
	Attempt int
}

// Included returns the members in slot order.
func (c Countdown) Included() []int { return c.Members.Sorted() }

func (c *Countdown) clone() Countdown {
	cp := *c
	cp.Members = NewSet(c.Included()...)
	return cp
}

// AuthState tracks the tokens offered for one game mode and whose token is in effect.
type AuthState struct {
	ByPlayer map[int]string
	Owner    int
}

type EventType string

const (
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtCountdownChanged EventType = "CountdownChanged"
	EvtCountdownHalted  EventType = "CountdownHalted"
	EvtCountdownResumed EventType = "CountdownResumed"
	EvtCountdownAborted EventType = "CountdownAborted"
	EvtVotesChanged     EventType = "VotesChanged"
	EvtAuthOwnerChanged EventType = "AuthOwnerChanged"
	EvtAuthRevoked      EventType = "AuthRevoked"
)

/*
	Vote/Unvote       -> EvtVotesChanged -> EvtCountdownStarted | EvtCountdownChanged | EvtCountdownAborted
	SetStatus         -> EvtCountdownHalted | EvtCountdownResumed
	Leave             -> EvtCountdownChanged/Aborted -> EvtAuthOwnerChanged/Revoked -> EvtVotesChanged -> reconcile
	Complete / Fail   -> EvtCountdownAborted (fail only) -> EvtVotesChanged -> reconcile
*/

type Event struct {
	Type      EventType
	Countdown Countdown
	Mode      string
	Slot      int
	Token     string
}
