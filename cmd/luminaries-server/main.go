// Command luminaries-server runs the enrichment engine behind the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/luminaries/internal/app"
	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/events"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: $LUMINARIES_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, func(addr string) {
		logging.Info().Str("addr", "http://"+addr).Msg("Luminaries API running")
	}); err != nil {
		logging.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. ready receives the listen address.
func run(ctx context.Context, cfg *config.Config, ready func(addr string)) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bus := events.NewBus(events.Config{})
	defer bus.Close()

	hub := server.NewHub()
	go hub.Run()
	a.Engine.SetOnRunStarted(hub.RunStarted)
	a.Engine.SetOnRunFinished(hub.RunFinished)

	if err := a.Engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if err := a.Engine.Subscribe(ctx, bus); err != nil {
		_ = a.Engine.Shutdown(context.Background())
		return fmt.Errorf("subscribe engine: %w", err)
	}

	srvCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()
	addr, err := server.Start(srvCtx, cfg, server.Dependencies{
		Store:    a.Store,
		Bus:      bus,
		Resolver: a.Resolver,
		Queue:    a.Engine,
		Hub:      hub,
	})
	if err != nil {
		_ = a.Engine.Shutdown(context.Background())
		return err
	}
	if ready != nil {
		ready(addr)
	}

	<-ctx.Done()
	logging.Info().Msg("Shutting down gracefully...")

	// Stop accepting triggers before draining the workers.
	cancelServer()
	if err := bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("Event bus close error")
	}
	if err := a.Engine.Shutdown(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Engine shutdown error")
	}
	return nil
}
