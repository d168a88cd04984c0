package hub

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/host"
	"github.com/DoyleJ11/lobbysync/internal/policy"
	"github.com/DoyleJ11/lobbysync/internal/wsslot"
)

// NewFactory returns a Factory that hosts each lobby on a websocket Listener.
// base supplies the timings; Options override name, owner and size.
// newPolicy is called once per lobby.
func NewFactory(base host.Config, newPolicy func() *policy.HostPolicy, log *zap.Logger) Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, code string, opts Options) (*Lobby, error) {
		cfg := base
		if opts.Name != "" {
			cfg.LobbyName = opts.Name
		}
		if opts.OwnerName != "" {
			cfg.OwnerName = opts.OwnerName
		}
		if opts.MaxPlayers > 0 {
			cfg.MaxPlayers = opts.MaxPlayers
		}
		lg := log.With(zap.String("code", code))

		var running atomic.Pointer[host.Coordinator]
		d := newPolicy()
		d.Log = lg
		d.OnYield = func(int) {
			if c := running.Load(); c != nil {
				c.Stop(false)
			}
		}

		ln := wsslot.NewListener(lg)
		c, err := host.New(ctx, cfg, d, ln.Slot, lg)
		if err != nil {
			return nil, err
		}
		running.Store(c)
		return &Lobby{
			Code:        code,
			Name:        cfg.LobbyName,
			Created:     time.Now(),
			Coordinator: c,
			Listener:    ln,
		}, nil
	}
}
