package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talkr-dev/talkr/backend/internal/config"
	"github.com/talkr-dev/talkr/backend/internal/server"
	"github.com/talkr-dev/talkr/backend/internal/signaling"
	"github.com/talkr-dev/talkr/backend/internal/turn"
	"github.com/talkr-dev/talkr/internal/logging"
	"github.com/talkr-dev/talkr/internal/metrics"
	"github.com/talkr-dev/talkr/internal/version"
)

func main() {
	logging.Init(slog.LevelInfo)

	if err := run(); err != nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var gen *turn.Generator
	if cfg.TURNSecret != "" {
		gen, err = turn.NewGenerator(turn.Config{Secret: cfg.TURNSecret, TTL: cfg.TURNTTL})
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create the Hub and run its event loop
	hub := signaling.NewHub(signaling.HubConfig{
		ICEServers: server.ICEServers(cfg.ICEServers, gen, slog.Default()),
		Metrics:    metrics.New(),
		Logger:     slog.Default().With("component", "hub"),
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	// 2. Register the routes
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.NewMux(hub, server.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         slog.Default().With("component", "http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 3. Serve until signalled
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting signaling relay",
			"addr", cfg.Addr,
			"version", version.Version,
			"ice_servers", len(cfg.ICEServers),
			"turn_rest", gen != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections; stopping the
	// hub ends their pumps.
	err = srv.Shutdown(shutdownCtx)
	stopHub()
	<-hub.Done()
	return err
}
