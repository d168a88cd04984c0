package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type Settings struct {
	SessionNonce   string
	LobbyNonce     string
	Name           string
	MaxPlayers     int
	Modes          []GameMode
	OwnerSlot      int
	OwnerName      string
	Created        time.Time
	CountdownDelay time.Duration
	RetryBackoff   time.Duration
}

// Lobby is the shared lobby state. The host's copy is authoritative and is
// mutated through the methods below; clients keep a mirror they update field
// by field from received messages.
type Lobby struct {
	SessionNonce string
	LobbyNonce   string
	Name         string
	MaxPlayers   int
	Modes        []GameMode
	OwnerSlot    int
	OwnerName    string
	Created      time.Time
	LastLaunch   time.Time
	Players      []Player
	Countdowns   map[int]*Countdown
	Auth         map[string]*AuthState

	countdownDelay time.Duration
	retryBackoff   time.Duration
	nextCountdown  int
}

func NewLobby(s Settings) (*Lobby, error) {
	if s.MaxPlayers < 1 {
		return nil, fmt.Errorf("%w: max players %d", ErrInvalidSettings, s.MaxPlayers)
	}
	if s.OwnerSlot < 0 || s.OwnerSlot >= s.MaxPlayers {
		return nil, fmt.Errorf("%w: owner slot %d", ErrInvalidSettings, s.OwnerSlot)
	}
	seen := map[string]bool{}
	for _, m := range s.Modes {
		if m.Name == "" || seen[m.Name] {
			return nil, fmt.Errorf("%w: duplicate or empty mode %q", ErrInvalidSettings, m.Name)
		}
		if m.MinPlayers < 1 || m.MaxPlayers < m.MinPlayers {
			return nil, fmt.Errorf("%w: mode %q wants %d..%d players", ErrInvalidSettings, m.Name, m.MinPlayers, m.MaxPlayers)
		}
		seen[m.Name] = true
	}
	ownerName, err := normalizeName(s.OwnerName)
	if err != nil {
		return nil, err
	}

	l := NewMirror()
	l.SessionNonce = s.SessionNonce
	l.LobbyNonce = s.LobbyNonce
	l.Name = s.Name
	l.Modes = slices.Clone(s.Modes)
	l.OwnerSlot = s.OwnerSlot
	l.OwnerName = ownerName
	l.Created = s.Created
	l.countdownDelay = s.CountdownDelay
	l.retryBackoff = s.RetryBackoff
	l.Resize(s.MaxPlayers)
	for _, m := range l.Modes {
		l.Auth[m.Name] = &AuthState{ByPlayer: map[int]string{}, Owner: NoSlot}
	}

	owner := &l.Players[s.OwnerSlot]
	owner.InLobby = true
	owner.Status = StatusActive
	owner.Name = ownerName
	return l, nil
}

// NewMirror returns an empty lobby for a client to fill from the welcome sequence.
func NewMirror() *Lobby {
	return &Lobby{
		OwnerSlot:  NoSlot,
		Countdowns: make(map[int]*Countdown),
		Auth:       make(map[string]*AuthState),
	}
}

// Resize sets the number of player slots, keeping existing players that still fit.
func (l *Lobby) Resize(n int) {
	players := make([]Player, n)
	for i := range players {
		if i < len(l.Players) {
			players[i] = l.Players[i]
			continue
		}
		players[i] = Player{Status: StatusNotConnected, Votes: map[string]bool{}}
	}
	l.Players = players
	l.MaxPlayers = n
}

func (l *Lobby) ValidSlot(slot int) bool { return slot >= 0 && slot < len(l.Players) }

func (l *Lobby) Mode(name string) (GameMode, bool) {
	for _, m := range l.Modes {
		if m.Name == name {
			return m, true
		}
	}
	return GameMode{}, false
}

// Present returns the slots currently in the lobby.
func (l *Lobby) Present() []int {
	var out []int
	for i, p := range l.Players {
		if p.InLobby {
			out = append(out, i)
		}
	}
	return out
}

func (l *Lobby) Statuses() []Status {
	out := make([]Status, len(l.Players))
	for i, p := range l.Players {
		out[i] = p.Status
	}
	return out
}

// Voters returns every present slot that voted for mode.
func (l *Lobby) Voters(mode string) []int {
	var out []int
	for i, p := range l.Players {
		if p.InLobby && p.Votes[mode] {
			out = append(out, i)
		}
	}
	return out
}

// Join marks slot as present and active with no name, nonce or votes yet.
func (l *Lobby) Join(slot int) error {
	if !l.ValidSlot(slot) {
		return ErrSlotOutOfRange
	}
	l.Players[slot] = Player{Status: StatusActive, InLobby: true, Votes: map[string]bool{}}
	return nil
}

func (l *Lobby) SetName(slot int, name string) (string, error) {
	p, err := l.present(slot)
	if err != nil {
		return "", err
	}
	n, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	p.Name = n
	if slot == l.OwnerSlot {
		l.OwnerName = n
	}
	return n, nil
}

func (l *Lobby) SetNonce(slot int, nonce string) error {
	p, err := l.present(slot)
	if err != nil {
		return err
	}
	if strings.TrimSpace(nonce) == "" {
		return ErrInvalidNonce
	}
	p.Nonce = nonce
	return nil
}

func (l *Lobby) SetColor(slot int, c Color) error {
	p, err := l.present(slot)
	if err != nil {
		return err
	}
	p.Color = c
	return nil
}

// Leave clears slot's presence and repairs every countdown and token it touched.
func (l *Lobby) Leave(slot int) []Event {
	if !l.ValidSlot(slot) || !l.Players[slot].InLobby {
		return nil
	}
	var voted []string
	for _, m := range l.Modes {
		if l.Players[slot].Votes[m.Name] {
			voted = append(voted, m.Name)
		}
	}
	l.Players[slot] = Player{Status: StatusNotConnected, Votes: map[string]bool{}}

	var events []Event
	for _, c := range l.sortedCountdowns("") {
		if c.Members.Has(slot) {
			events = append(events, l.removeFrom(c, slot)...)
		}
	}
	events = append(events, l.dropTokens(slot)...)
	for _, mode := range voted {
		events = append(events, Event{Type: EvtVotesChanged, Mode: mode})
	}
	return append(events, l.Reconcile()...)
}

// Clone returns a deep copy for read-only views.
func (l *Lobby) Clone() Lobby {
	cp := *l
	cp.Modes = slices.Clone(l.Modes)
	cp.Players = make([]Player, len(l.Players))
	for i, p := range l.Players {
		p.Votes = make(map[string]bool, len(l.Players[i].Votes))
		for m, v := range l.Players[i].Votes {
			p.Votes[m] = v
		}
		cp.Players[i] = p
	}
	cp.Countdowns = make(map[int]*Countdown, len(l.Countdowns))
	for n, c := range l.Countdowns {
		cc := c.clone()
		cp.Countdowns[n] = &cc
	}
	cp.Auth = make(map[string]*AuthState, len(l.Auth))
	for m, a := range l.Auth {
		byPlayer := make(map[int]string, len(a.ByPlayer))
		for s, tok := range a.ByPlayer {
			byPlayer[s] = tok
		}
		cp.Auth[m] = &AuthState{ByPlayer: byPlayer, Owner: a.Owner}
	}
	return cp
}

func (l *Lobby) present(slot int) (*Player, error) {
	if !l.ValidSlot(slot) {
		return nil, ErrSlotOutOfRange
	}
	if !l.Players[slot].InLobby {
		return nil, ErrSlotNotInLobby
	}
	return &l.Players[slot], nil
}

func normalizeName(name string) (string, error) {
	n := strings.TrimSpace(norm.NFC.String(name))
	if n == "" || len([]rune(n)) > MaxNameLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range n {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidName)
		}
	}
	return n, nil
}
