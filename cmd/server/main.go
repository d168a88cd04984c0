package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lobbysync/internal/config"
	"github.com/DoyleJ11/lobbysync/internal/host"
	"github.com/DoyleJ11/lobbysync/internal/httpapi"
	"github.com/DoyleJ11/lobbysync/internal/hub"
	"github.com/DoyleJ11/lobbysync/internal/logging"
	"github.com/DoyleJ11/lobbysync/internal/policy"
)

const shutdownTimeout = 5 * time.Second

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
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := host.Config{
		LobbyName:          cfg.LobbyName,
		OwnerName:          cfg.OwnerName,
		MaxPlayers:         cfg.MaxPlayers,
		NegotiationTimeout: cfg.NegotiationTimeout,
		DisconnectGrace:    cfg.DisconnectGrace,
		ReconnectDelay:     cfg.ReconnectDelay,
		CountdownDelay:     cfg.CountdownDelay,
		RetryBackoff:       cfg.RetryBackoff,
		BroadcastNonces:    cfg.BroadcastNonces,
	}
	priority := policy.NewPriority(0, nil)
	verifier := policy.NewVerifier(cfg.AuthSecret)
	newPolicy := func() *policy.HostPolicy {
		return &policy.HostPolicy{
			Modes:       cfg.GameModes,
			Priority:    priority,
			Palette:     policy.DefaultPalette,
			Verifier:    verifier,
			GameAddress: cfg.GameAddress,
		}
	}
	h := hub.NewHub(context.WithoutCancel(ctx), hub.NewFactory(base, newPolicy, log), log.Named("hub"))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.SetupRoutes(h, httpapi.Options{PublicURL: cfg.PublicURL, Log: log.Named("http")}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Int("modes", len(cfg.GameModes)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Lobbies first, so clients hear SERVER_CLOSING before their sockets drop.
		done := make(chan struct{})
		h.Inbox() <- hub.ShutdownHub{Done: done}
		select {
		case <-done:
		case <-sctx.Done():
			log.Warn("lobbies did not stop in time")
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
