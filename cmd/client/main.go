package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobbysync/internal/client"
	"github.com/DoyleJ11/lobbysync/internal/config"
	"github.com/DoyleJ11/lobbysync/internal/engine"
	"github.com/DoyleJ11/lobbysync/internal/logging"
	"github.com/DoyleJ11/lobbysync/internal/policy"
	"github.com/DoyleJ11/lobbysync/internal/protocol"
	"github.com/DoyleJ11/lobbysync/internal/transport"
	"github.com/DoyleJ11/lobbysync/internal/wsslot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	url := flag.String("url", cfg.HostURL, "lobby websocket url, e.g. ws://host:8080/ws?code=ABC123")
	name := flag.String("name", cfg.PlayerName, "player name")
	votes := flag.String("vote", "", "comma separated game modes to vote for once welcomed")
	token := flag.String("token", "", "auth token offered for every voted mode that needs one")
	giveUp := flag.Duration("give-up", 2*time.Minute, "stop after the lobby was unreachable this long (0 retries forever)")
	flag.Parse()

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan string, 1)
	welcomes := make(chan engine.Lobby, 1)
	finish := func(reason string) {
		select {
		case finished <- reason:
		default:
		}
	}

	cp := &policy.ClientPolicy{
		Backoff:     policy.Backoff{Base: cfg.ReconnectDelay, Max: 30 * time.Second},
		Priority:    policy.NewPriority(0, nil),
		GiveUpAfter: *giveUp,
		Log:         log,
		OnWelcome: func(lobby engine.Lobby, _ int) {
			select {
			case welcomes <- lobby:
			default:
			}
		},
		OnLaunch: func(m protocol.Message) {
			target, _ := protocol.Target(m)
			log.Info("game starting", zap.String("role", string(m.Kind())), zap.String("mode", target.Mode))
		},
		OnHandoff: func(conn transport.Slot) {
			// The game would take the connection over here.
			_ = conn.Disconnect()
			finish("launched")
		},
		OnGiveUp: func() { finish("lobby unreachable") },
		OnHost:   func() { log.Info("peer is a client too, nothing to host from here") },
	}

	n := client.New(context.WithoutCancel(ctx), client.Config{Name: *name, Color: engine.Color(policy.DefaultPalette.For(0)), DisconnectGrace: cfg.DisconnectGrace}, cp,
		func(h transport.Handler) transport.Slot { return wsslot.NewDialSlot(*url, h, log.Named("slot")) }, log)

	for {
		select {
		case lobby := <-welcomes:
			// A reconnect joins with no votes, so they are cast on every welcome.
			castVotes(n, lobby, *votes, *token, log)
		case <-ctx.Done():
			n.Stop()
			select {
			case <-n.Done():
			case <-time.After(2 * time.Second):
				n.StopNow()
				<-n.Done()
			}
			return nil
		case reason := <-finished:
			log.Info("leaving", zap.String("reason", reason))
			n.StopNow()
			<-n.Done()
			return nil
		case <-n.Done():
			return nil
		}
	}
}

func castVotes(n *client.Negotiator, lobby engine.Lobby, votes, token string, log *zap.Logger) {
	for _, mode := range strings.Split(votes, ",") {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			continue
		}
		gm, ok := lobby.Mode(mode)
		if !ok {
			log.Warn("lobby does not offer mode", zap.String("mode", mode))
			continue
		}
		if gm.NeedsAuth && token != "" {
			n.Post(client.OfferAuthToken{Mode: mode, Token: token})
		}
		n.Post(client.Vote{Mode: mode})
	}
}
