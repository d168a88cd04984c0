package engine

import (
	"slices"
	"time"
)

// Vote records slot's vote for mode and feeds it to the countdowns.
func (l *Lobby) Vote(slot int, mode string) ([]Event, error) {
	p, err := l.present(slot)
	if err != nil {
		return nil, err
	}
	gm, ok := l.Mode(mode)
	if !ok {
		return nil, ErrUnknownMode
	}
	if p.Votes[mode] {
		return nil, nil
	}
	p.Votes[mode] = true

	events := []Event{{Type: EvtVotesChanged, Mode: mode, Slot: slot}}
	events = append(events, l.addVoter(slot, gm)...)
	return append(events, l.Reconcile()...), nil
}

func (l *Lobby) Unvote(slot int, mode string) ([]Event, error) {
	p, err := l.present(slot)
	if err != nil {
		return nil, err
	}
	gm, ok := l.Mode(mode)
	if !ok {
		return nil, ErrUnknownMode
	}
	if !p.Votes[mode] {
		return nil, nil
	}
	delete(p.Votes, mode)

	events := []Event{{Type: EvtVotesChanged, Mode: mode, Slot: slot}}
	events = append(events, l.removeVoter(slot, gm.Name)...)
	return append(events, l.Reconcile()...), nil
}

// ResetVotes withdraws every vote slot holds.
func (l *Lobby) ResetVotes(slot int) []Event {
	if !l.ValidSlot(slot) {
		return nil
	}
	var events []Event
	for _, m := range l.Modes {
		if !l.Players[slot].Votes[m.Name] {
			continue
		}
		delete(l.Players[slot].Votes, m.Name)
		events = append(events, Event{Type: EvtVotesChanged, Mode: m.Name, Slot: slot})
		events = append(events, l.removeVoter(slot, m.Name)...)
	}
	return events
}

// SetStatus changes a player's presence status. Countdowns holding the player
// halt while any member is not ACTIVE and resume once all of them are again.
func (l *Lobby) SetStatus(slot int, st Status) ([]Event, error) {
	p, err := l.present(slot)
	if err != nil {
		return nil, err
	}
	if p.Status == st {
		return nil, nil
	}
	p.Status = st

	var events []Event
	for _, c := range l.sortedCountdowns("") {
		if !c.Members.Has(slot) {
			continue
		}
		old := c.Status
		c.Status = l.statusOf(c)
		switch {
		case old == CountdownActive && c.Status == CountdownHalted:
			events = append(events, Event{Type: EvtCountdownHalted, Countdown: c.clone()})
		case old == CountdownHalted && c.Status == CountdownActive:
			events = append(events, Event{Type: EvtCountdownResumed, Countdown: c.clone()})
		}
	}
	return append(events, l.Reconcile()...), nil
}

// Reconcile runs merge, expand and start for every mode, in that order.
func (l *Lobby) Reconcile() []Event {
	var events []Event
	for _, m := range l.Modes {
		events = append(events, l.merge(m)...)
		events = append(events, l.expand(m)...)
		events = append(events, l.start(m, 0)...)
	}
	return events
}

// Expire reports the countdown that should launch now, if number is still
// alive and ACTIVE.
func (l *Lobby) Expire(number int) (Countdown, bool) {
	c, ok := l.Countdowns[number]
	if !ok || c.Status != CountdownActive {
		return Countdown{}, false
	}
	return c.clone(), true
}

// Complete removes a launched countdown and resets its members' votes.
func (l *Lobby) Complete(number int, at time.Time) []Event {
	c, ok := l.Countdowns[number]
	if !ok {
		return nil
	}
	delete(l.Countdowns, number)
	l.LastLaunch = at

	var events []Event
	for _, slot := range c.Included() {
		events = append(events, l.ResetVotes(slot)...)
	}
	return append(events, l.Reconcile()...)
}

// Fail aborts a countdown whose launch could not be arranged and immediately
// tries to start its mode again with the next attempt number.
func (l *Lobby) Fail(number int) []Event {
	c, ok := l.Countdowns[number]
	if !ok {
		return nil
	}
	events := []Event{l.abort(c)}
	if gm, ok := l.Mode(c.Mode); ok {
		events = append(events, l.start(gm, c.Attempt+1)...)
	}
	return append(events, l.Reconcile()...)
}

// CountdownFor returns the countdown for mode that includes slot.
func (l *Lobby) CountdownFor(slot int, mode string) (Countdown, bool) {
	for _, c := range l.sortedCountdowns(mode) {
		if c.Members.Has(slot) {
			return c.clone(), true
		}
	}
	return Countdown{}, false
}

// SortedCountdowns returns copies of the live countdowns in number order.
func (l *Lobby) SortedCountdowns() []Countdown {
	cs := l.sortedCountdowns("")
	out := make([]Countdown, len(cs))
	for i, c := range cs {
		out[i] = c.clone()
	}
	return out
}

func (l *Lobby) start(gm GameMode, attempt int) []Event {
	if gm.NeedsAuth && l.authOwner(gm.Name) == NoSlot {
		return nil
	}
	var events []Event
	for {
		members := l.eligible(gm.Name, false)
		if len(members) < gm.MinPlayers {
			members = l.eligible(gm.Name, true)
			if len(members) < gm.MinPlayers {
				return events
			}
		}
		if len(members) > gm.MaxPlayers {
			members = members[:gm.MaxPlayers]
		}
		l.nextCountdown++
		c := &Countdown{
			Number:  l.nextCountdown,
			Mode:    gm.Name,
			Members: NewSet(members...),
			Delay:   l.countdownDelay + time.Duration(attempt)*l.retryBackoff,
			Attempt: attempt,
		}
		c.Status = l.statusOf(c)
		l.Countdowns[c.Number] = c
		events = append(events, Event{Type: EvtCountdownStarted, Countdown: c.clone()})
	}
}

// addVoter puts slot into the first countdown for the mode that has room, or
// starts a new one.
func (l *Lobby) addVoter(slot int, gm GameMode) []Event {
	if _, in := l.CountdownFor(slot, gm.Name); in {
		return nil
	}
	switch l.Players[slot].Status {
	case StatusActive, StatusInactive:
	default:
		return nil
	}
	for _, c := range l.sortedCountdowns(gm.Name) {
		if len(c.Members) >= gm.MaxPlayers {
			continue
		}
		c.Members[slot] = struct{}{}
		c.Status = l.statusOf(c)
		return []Event{{Type: EvtCountdownChanged, Countdown: c.clone()}}
	}
	return l.start(gm, 0)
}

// removeVoter shrinks the countdown holding slot for mode, or aborts it when
// that would leave it below the mode's minimum.
func (l *Lobby) removeVoter(slot int, mode string) []Event {
	var events []Event
	for _, c := range l.sortedCountdowns(mode) {
		if c.Members.Has(slot) {
			events = append(events, l.removeFrom(c, slot)...)
		}
	}
	return events
}

func (l *Lobby) removeFrom(c *Countdown, slot int) []Event {
	gm, ok := l.Mode(c.Mode)
	if !ok || len(c.Members)-1 < gm.MinPlayers {
		return []Event{l.abort(c)}
	}
	delete(c.Members, slot)
	c.Status = l.statusOf(c)
	return []Event{{Type: EvtCountdownChanged, Countdown: c.clone()}}
}

// expand fills free room in existing countdowns with active voters that are
// not yet engaged, first countdown first.
func (l *Lobby) expand(gm GameMode) []Event {
	var events []Event
	for _, c := range l.sortedCountdowns(gm.Name) {
		room := gm.MaxPlayers - len(c.Members)
		if room <= 0 {
			continue
		}
		added := false
		for _, slot := range l.eligible(gm.Name, false) {
			if room == 0 {
				break
			}
			c.Members[slot] = struct{}{}
			room--
			added = true
		}
		if added {
			c.Status = l.statusOf(c)
			events = append(events, Event{Type: EvtCountdownChanged, Countdown: c.clone()})
		}
	}
	return events
}

// merge folds later countdowns into earlier ones while two of them fit
// together within the mode's maximum.
func (l *Lobby) merge(gm GameMode) []Event {
	var events []Event
	for {
		cs := l.sortedCountdowns(gm.Name)
		merged := false
	scan:
		for i, a := range cs {
			if len(a.Members) >= gm.MaxPlayers {
				continue
			}
			for _, b := range cs[i+1:] {
				if len(a.Members)+len(b.Members) > gm.MaxPlayers {
					continue
				}
				for slot := range b.Members {
					a.Members[slot] = struct{}{}
				}
				a.Attempt = max(a.Attempt, b.Attempt)
				a.Status = l.statusOf(a)
				events = append(events, l.abort(b), Event{Type: EvtCountdownChanged, Countdown: a.clone()})
				merged = true
				break scan
			}
		}
		if !merged {
			return events
		}
	}
}

func (l *Lobby) abort(c *Countdown) Event {
	delete(l.Countdowns, c.Number)
	c.Status = CountdownAborted
	return Event{Type: EvtCountdownAborted, Countdown: c.clone()}
}

func (l *Lobby) statusOf(c *Countdown) CountdownStatus {
	for slot := range c.Members {
		if l.Players[slot].Status != StatusActive {
			return CountdownHalted
		}
	}
	return CountdownActive
}

// eligible lists present voters for mode outside any countdown of that mode,
// ACTIVE players first, then INACTIVE ones when withInactive is set.
func (l *Lobby) eligible(mode string, withInactive bool) []int {
	var active, inactive []int
	for i, p := range l.Players {
		if !p.InLobby || !p.Votes[mode] {
			continue
		}
		if _, in := l.CountdownFor(i, mode); in {
			continue
		}
		switch p.Status {
		case StatusActive:
			active = append(active, i)
		case StatusInactive:
			inactive = append(inactive, i)
		}
	}
	if withInactive {
		return append(active, inactive...)
	}
	return active
}

// sortedCountdowns returns the live countdowns for mode ("" for all) by number.
func (l *Lobby) sortedCountdowns(mode string) []*Countdown {
	var out []*Countdown
	for _, c := range l.Countdowns {
		if mode == "" || c.Mode == mode {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Countdown) int { return a.Number - b.Number })
	return out
}
