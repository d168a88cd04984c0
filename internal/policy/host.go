package policy

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/host"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
)

var ErrNoGameAddress = errors.New("no game address configured")

// HostPolicy is the server's host.Delegate.
type HostPolicy struct {
	Modes       []engine.GameMode
	Priority    *Priority
	Palette     Palette
	Verifier    *Verifier
	GameAddress string
	// Matchseeker routes launched games through a matchmaking service that
	// needs an edit key from the game host.
	Matchseeker bool
	Log         *zap.Logger

	// OnLaunch receives the owner's launch role, if set.
	OnLaunch func(m protocol.Message)
	// OnYield is told when another host outranked this one.
	OnYield func(slot int)
}

func (p *HostPolicy) GameModes() []engine.GameMode { return p.Modes }

func (p *HostPolicy) HostPriority() int64 { return p.Priority.Draw() }

func (p *HostPolicy) DefaultColor(slot int) engine.Color { return engine.Color(p.Palette.For(slot)) }

// HostingInfo picks the lowest included slot as game host and mints a fresh
// session nonce for every attempt.
func (p *HostPolicy) HostingInfo(req host.LaunchRequest) (host.HostingInfo, error) {
	if p.GameAddress == "" {
		return host.HostingInfo{}, ErrNoGameAddress
	}
	if len(req.Included) == 0 {
		return host.HostingInfo{}, errors.New("launch without players")
	}
	info := host.HostingInfo{
		HostSlot:     req.Included[0],
		Matchseeker:  p.Matchseeker,
		SessionNonce: uuid.NewString(),
		Address:      p.GameAddress,
	}
	if p.Matchseeker {
		info.EditKey = uuid.NewString()
	}
	return info, nil
}

func (p *HostPolicy) VerifyAuthToken(mode string, slot int, token string) bool {
	if err := p.Verifier.Verify(mode, token); err != nil {
		p.log().Info("token verification failed",
			zap.String("mode", mode), zap.Int("slot", slot), zap.String("token", Fingerprint(token)), zap.Error(err))
		return false
	}
	p.log().Debug("token verified", zap.String("mode", mode), zap.Int("slot", slot), zap.String("token", Fingerprint(token)))
	return true
}

func (p *HostPolicy) ShouldBecomeClient(slot int) {
	p.log().Warn("another host outranked this lobby", zap.Int("slot", slot))
	if p.OnYield != nil {
		p.OnYield(slot)
	}
}

func (p *HostPolicy) Launched(m protocol.Message) {
	switch m.(type) {
	case protocol.LaunchAsDirectHost, protocol.LaunchAsMatchseekerHost:
		p.Priority.Hosted()
	}
	if p.OnLaunch != nil {
		p.OnLaunch(m)
	}
}

func (p *HostPolicy) TextMessage(slot int, text string) {
	p.log().Info("chat", zap.Int("slot", slot), zap.String("text", text))
}

func (p *HostPolicy) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
