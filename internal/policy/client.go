package policy

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
)

// Backoff doubles the reconnect delay with every consecutive failure.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		return b.Base
	}
	d := b.Base
	for i := 1; i < failures && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// ClientPolicy is the client binary's client.Delegate. It logs what happens
// and forwards the interesting moments to optional hooks.
type ClientPolicy struct {
	Backoff  Backoff
	Priority *Priority
	// GiveUpAfter stops reconnecting once the lobby has been unreachable this
	// long. Zero retries forever.
	GiveUpAfter time.Duration
	Log         *zap.Logger

	OnWelcome func(lobby engine.Lobby, slot int)
	OnLaunch  func(m protocol.Message)
	OnHandoff func(conn transport.Slot)
	OnGiveUp  func()
	OnHost    func()
}

func (p *ClientPolicy) ReconnectDelay(failures int, downtime time.Duration) time.Duration {
	if p.GiveUpAfter > 0 && downtime > p.GiveUpAfter && p.OnGiveUp != nil {
		p.log().Warn("lobby unreachable, giving up", zap.Duration("downtime", downtime), zap.Int("failures", failures))
		p.OnGiveUp()
	}
	return p.Backoff.Delay(failures)
}

func (p *ClientPolicy) HostPriority() int64 { return p.Priority.Draw() }

func (p *ClientPolicy) ShouldBecomeHost() {
	p.log().Info("peer is also a client and we outrank it")
	if p.OnHost != nil {
		p.OnHost()
	}
}

func (p *ClientPolicy) ConnectionStatusChanged(connected bool) {
	p.log().Info("connection", zap.Bool("connected", connected))
}

func (p *ClientPolicy) Welcomed(lobby engine.Lobby, slot int) {
	p.log().Info("in lobby", zap.String("lobby", lobby.Name), zap.Int("slot", slot), zap.Ints("present", lobby.Present()))
	if p.OnWelcome != nil {
		p.OnWelcome(lobby, slot)
	}
}

func (p *ClientPolicy) HostIdentified(slot int, name string) {
	p.log().Info("host", zap.Int("slot", slot), zap.String("name", name))
}

func (p *ClientPolicy) Kicked(reason string) {
	p.log().Warn("kicked", zap.String("reason", reason))
}

func (p *ClientPolicy) ServerClosing(forever bool) {
	p.log().Info("lobby closing", zap.Bool("forever", forever))
}

func (p *ClientPolicy) TextMessage(slot int, text string) {
	p.log().Info("chat", zap.Int("slot", slot), zap.String("text", text))
}

func (p *ClientPolicy) Launched(m protocol.Message) {
	target, _ := protocol.Target(m)
	p.log().Info("launch", zap.String("role", string(m.Kind())), zap.Int("number", target.Number),
		zap.String("mode", target.Mode), zap.Ints("included", target.Included))
	if p.OnLaunch != nil {
		p.OnLaunch(m)
	}
}

func (p *ClientPolicy) StoppedWithOpenConnection(conn transport.Slot) {
	p.log().Debug("lobby connection handed off")
	if p.OnHandoff != nil {
		p.OnHandoff(conn)
	}
}

func (p *ClientPolicy) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
