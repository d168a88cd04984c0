package engine

import (
	"errors"
	"slices"
)

var ErrInvalidToken = errors.New("invalid authorization token")

// AuthOwner returns the slot whose token is in effect for mode and that token.
func (l *Lobby) AuthOwner(mode string) (int, string, bool) {
	a, ok := l.Auth[mode]
	if !ok || a.Owner == NoSlot {
		return NoSlot, "", false
	}
	return a.Owner, a.ByPlayer[a.Owner], true
}

// OfferToken stores slot's token for mode. The first holder becomes the owner;
// an owner replacing its own token re-announces it.
func (l *Lobby) OfferToken(slot int, mode, token string) ([]Event, error) {
	if _, err := l.present(slot); err != nil {
		return nil, err
	}
	if _, ok := l.Mode(mode); !ok {
		return nil, ErrUnknownMode
	}
	if token == "" {
		return nil, ErrInvalidToken
	}
	a := l.authState(mode)
	prev, had := a.ByPlayer[slot]
	a.ByPlayer[slot] = token

	var events []Event
	switch {
	case a.Owner == NoSlot:
		a.Owner = slot
		events = append(events, Event{Type: EvtAuthOwnerChanged, Mode: mode, Slot: slot, Token: token})
	case a.Owner == slot && (!had || prev != token):
		events = append(events, Event{Type: EvtAuthOwnerChanged, Mode: mode, Slot: slot, Token: token})
	}
	return append(events, l.Reconcile()...), nil
}

// RevokeToken withdraws slot's token for mode. Ownership passes to the lowest
// remaining holder; with none left, countdowns of a mode that needs
// authorization are aborted.
func (l *Lobby) RevokeToken(slot int, mode string) ([]Event, error) {
	if !l.ValidSlot(slot) {
		return nil, ErrSlotOutOfRange
	}
	if _, ok := l.Mode(mode); !ok {
		return nil, ErrUnknownMode
	}
	events := l.revoke(slot, mode)
	return append(events, l.Reconcile()...), nil
}

func (l *Lobby) revoke(slot int, mode string) []Event {
	a := l.authState(mode)
	if _, ok := a.ByPlayer[slot]; !ok {
		return nil
	}
	delete(a.ByPlayer, slot)
	if a.Owner != slot {
		return nil
	}

	holders := make([]int, 0, len(a.ByPlayer))
	for s := range a.ByPlayer {
		holders = append(holders, s)
	}
	if len(holders) > 0 {
		slices.Sort(holders)
		a.Owner = holders[0]
		return []Event{{Type: EvtAuthOwnerChanged, Mode: mode, Slot: a.Owner, Token: a.ByPlayer[a.Owner]}}
	}

	a.Owner = NoSlot
	events := []Event{{Type: EvtAuthRevoked, Mode: mode, Slot: slot}}
	if gm, _ := l.Mode(mode); gm.NeedsAuth {
		for _, c := range l.sortedCountdowns(mode) {
			events = append(events, l.abort(c))
		}
	}
	return events
}

// dropTokens revokes every token slot holds.
func (l *Lobby) dropTokens(slot int) []Event {
	var events []Event
	for _, m := range l.Modes {
		events = append(events, l.revoke(slot, m.Name)...)
	}
	return events
}

func (l *Lobby) authOwner(mode string) int {
	if a, ok := l.Auth[mode]; ok {
		return a.Owner
	}
	return NoSlot
}

func (l *Lobby) authState(mode string) *AuthState {
	a, ok := l.Auth[mode]
	if !ok {
		a = &AuthState{ByPlayer: map[int]string{}, Owner: NoSlot}
		l.Auth[mode] = a
	}
	return a
}
