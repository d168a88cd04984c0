package host

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

var ErrBadHostingInfo = errors.New("unusable hosting info")

// apply turns engine events into broadcasts and countdown timers, in order.
func (c *Coordinator) apply(events []engine.Event) {
	for _, e := range events {
		cd := e.Countdown
		switch e.Type {
		case engine.EvtCountdownStarted, engine.EvtCountdownChanged, engine.EvtCountdownResumed:
			c.broadcast(countdownMessage(cd))
			if cd.Status == engine.CountdownActive {
				c.inbox.PostAfter(countdownKey(cd.Number), cd.Delay, countdownExpired{number: cd.Number})
			} else {
				c.inbox.Cancel(countdownKey(cd.Number))
			}
			c.log.Debug("countdown", zap.String("event", string(e.Type)), zap.Int("number", cd.Number),
				zap.String("mode", cd.Mode), zap.Ints("included", cd.Included()), zap.String("status", string(cd.Status)))
		case engine.EvtCountdownHalted:
			c.inbox.Cancel(countdownKey(cd.Number))
			c.broadcast(protocol.LaunchHalted{Number: cd.Number})
			c.log.Debug("countdown halted", zap.Int("number", cd.Number))
		case engine.EvtCountdownAborted:
			c.inbox.Cancel(countdownKey(cd.Number))
			c.broadcast(protocol.LaunchAborted{Number: cd.Number})
			c.log.Debug("countdown aborted", zap.Int("number", cd.Number))
		case engine.EvtVotesChanged:
			c.broadcast(protocol.GameModeVotes{Mode: e.Mode, Slots: c.lobby.Voters(e.Mode)})
		case engine.EvtAuthOwnerChanged:
			c.broadcast(protocol.AuthToken{Mode: e.Mode, Slot: e.Slot, Token: e.Token})
		case engine.EvtAuthRevoked:
			c.broadcast(protocol.AuthTokenRevoke{Mode: e.Mode, Slot: e.Slot})
		}
	}
}

func (c *Coordinator) onCountdownExpired(number int) {
	cd, ok := c.lobby.Expire(number)
	if !ok {
		return
	}
	c.launch(cd)
}

// launch hands out a role to every accepted client: the chosen game host,
// the other included players as its clients, everybody else as absent.
func (c *Coordinator) launch(cd engine.Countdown) {
	log := c.log.With(zap.Int("number", cd.Number), zap.String("mode", cd.Mode), zap.Int("attempt", cd.Attempt))
	included := cd.Included()
	target := protocol.LaunchTarget{Number: cd.Number, Mode: cd.Mode, Included: included}

	info, err := c.delegate.HostingInfo(LaunchRequest{Number: cd.Number, Mode: cd.Mode, Included: included, Attempt: cd.Attempt})
	if err == nil {
		err = checkHostingInfo(info, target)
	}
	if err != nil {
		log.Warn("launch failed", zap.Error(err))
		c.broadcast(protocol.LaunchFailed{Number: cd.Number, Mode: cd.Mode})
		c.apply(c.lobby.Fail(cd.Number))
		return
	}

	for slot := 0; slot < c.lobby.MaxPlayers; slot++ {
		m := roleMessage(slot, info, target)
		if slot == c.lobby.OwnerSlot {
			if c.lobby.Players[slot].InLobby {
				c.delegate.Launched(m)
			}
			continue
		}
		if p := c.peer(slot); p != nil && p.reachable() {
			c.send(p, m)
		}
	}
	log.Info("game launched", zap.Ints("included", included), zap.Int("game_host", info.HostSlot), zap.Bool("matchseeker", info.Matchseeker))
	c.apply(c.lobby.Complete(cd.Number, time.Now()))
}

func checkHostingInfo(info HostingInfo, target protocol.LaunchTarget) error {
	if !slices.Contains(target.Included, info.HostSlot) {
		return fmt.Errorf("%w: game host slot %d is not included", ErrBadHostingInfo, info.HostSlot)
	}
	if err := protocol.Validate(roleMessage(info.HostSlot, info, target)); err != nil {
		return fmt.Errorf("%w: %w", ErrBadHostingInfo, err)
	}
	return nil
}

func roleMessage(slot int, info HostingInfo, target protocol.LaunchTarget) protocol.Message {
	if !slices.Contains(target.Included, slot) {
		return protocol.LaunchAsAbsent{LaunchTarget: target}
	}
	endpoint := protocol.Endpoint{SessionNonce: info.SessionNonce, Address: info.Address}
	switch {
	case slot == info.HostSlot && info.Matchseeker:
		return protocol.LaunchAsMatchseekerHost{LaunchTarget: target, Endpoint: endpoint, EditKey: info.EditKey}
	case slot == info.HostSlot:
		return protocol.LaunchAsDirectHost{LaunchTarget: target, Endpoint: endpoint}
	case info.Matchseeker:
		return protocol.LaunchAsMatchseekerClient{LaunchTarget: target, Endpoint: endpoint}
	default:
		return protocol.LaunchAsDirectClient{LaunchTarget: target, Endpoint: endpoint}
	}
}
