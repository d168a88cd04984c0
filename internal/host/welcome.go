package host

import (
	"time"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

// welcome sends the full lobby snapshot to p. It is safe to repeat: every
// message overwrites rather than accumulates on the client.
func (c *Coordinator) welcome(p *peer) {
	for _, m := range c.welcomeSequence(p.index, time.Now()) {
		if !p.reachable() {
			return
		}
		c.send(p, m)
	}
}

func (c *Coordinator) welcomeSequence(slot int, now time.Time) []protocol.Message {
	l := c.lobby
	present := l.Present()
	msgs := []protocol.Message{
		protocol.YouAreClient{},
		protocol.Host{Slot: l.OwnerSlot, Name: l.OwnerName},
		protocol.LobbyStatus{
			Name:       l.Name,
			AgeSeconds: int64(now.Sub(l.Created) / time.Second),
			Population: len(present),
			MaxPlayers: l.MaxPlayers,
		},
		protocol.TotalPlayerSlots{Count: l.MaxPlayers},
		protocol.PersonalPlayerSlot{Slot: slot},
	}

	modes := make([]protocol.ModeInfo, 0, len(l.Modes))
	for _, gm := range l.Modes {
		modes = append(modes, protocol.ModeInfo{Name: gm.Name, MinPlayers: gm.MinPlayers, MaxPlayers: gm.MaxPlayers, NeedsAuth: gm.NeedsAuth})
	}
	msgs = append(msgs, protocol.GameModeList{Modes: modes})
	for _, gm := range l.Modes {
		msgs = append(msgs, protocol.GameModeXML{Mode: gm.Name, XML: gm.XML})
	}

	for _, i := range present {
		if i != slot && l.Players[i].Name != "" {
			msgs = append(msgs, protocol.PlayerName{Slot: i, Name: l.Players[i].Name})
		}
	}
	if c.cfg.BroadcastNonces {
		for _, i := range present {
			if i != slot && l.Players[i].Nonce != "" {
				msgs = append(msgs, protocol.PersonalNonce{Slot: i, Nonce: l.Players[i].Nonce})
			}
		}
	}
	for _, gm := range l.Modes {
		if owner, token, ok := l.AuthOwner(gm.Name); ok {
			msgs = append(msgs, protocol.AuthToken{Mode: gm.Name, Slot: owner, Token: token})
		}
	}
	for _, gm := range l.Modes {
		if voters := l.Voters(gm.Name); len(voters) > 0 {
			msgs = append(msgs, protocol.GameModeVotes{Mode: gm.Name, Slots: voters})
		}
	}
	for _, cd := range l.SortedCountdowns() {
		msgs = append(msgs, countdownMessage(cd))
	}

	for _, i := range present {
		if i != slot {
			msgs = append(msgs, protocol.PreferredColor{Slot: i, Color: l.Players[i].Color})
		}
	}
	if l.ValidSlot(slot) && l.Players[slot].InLobby {
		msgs = append(msgs, protocol.PreferredColor{Slot: slot, Color: l.Players[slot].Color})
	}

	return append(msgs,
		protocol.PlayersInLobby{Slots: present},
		protocol.PlayerStatuses{Statuses: l.Statuses()},
		protocol.WelcomeToServer{},
	)
}

func countdownMessage(cd engine.Countdown) protocol.LaunchCountdown {
	return protocol.LaunchCountdown{
		Number:      cd.Number,
		Mode:        cd.Mode,
		Included:    cd.Included(),
		Status:      cd.Status,
		DelayMillis: cd.Delay.Milliseconds(),
		Attempt:     cd.Attempt,
	}
}
