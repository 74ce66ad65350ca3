// Command luminaries-sweep re-applies the relevance filter to every stored
// item and re-scores every person. With -refresh it also runs a full
// enrichment for each person, one at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/luminaries/internal/app"
	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/internal/engine"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (default: $LUMINARIES_CONFIG)")
	refresh    = flag.Bool("refresh", false, "Run a full enrichment for every person after the sweep")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize")
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.Engine.Sweep(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Sweep failed")
		os.Exit(1)
	}
	fmt.Printf("Sweep: %d persons, %d skipped, %d failed, %d retracted, %d restored\n",
		stats.Persons, stats.Skipped, stats.Failed, stats.Retracted, stats.Restored)

	if *refresh {
		ran, failed, err := refreshAll(ctx, a.Engine, a.Store)
		fmt.Printf("Refresh: %d runs, %d failed\n", ran, failed)
		if err != nil {
			logging.Error().Err(err).Msg("Refresh interrupted")
			os.Exit(1)
		}
	}
}

// refreshAll runs enrichment for every person not currently building. Runs
// are sequential so adapters see one person's traffic at a time.
func refreshAll(ctx context.Context, e *engine.Engine, store storage.Store) (ran, failed int, err error) {
	for page := 1; ; page++ {
		result, err := store.ListPersons(ctx, storage.ListOptions{Page: page, Limit: 200, SortBy: "created_at", SortOrder: "asc"})
		if err != nil {
			return ran, failed, err
		}
		for _, p := range result.Items {
			if err := ctx.Err(); err != nil {
				return ran, failed, err
			}
			if p.Status == types.StatusBuilding {
				continue
			}
			_, err := e.Run(ctx, &engine.Job{PersonID: p.ID, Trigger: types.TriggerSweep})
			switch {
			case err == nil:
				ran++
			case errors.Is(err, engine.ErrRunInProgress):
			default:
				ran++
				failed++
				logging.Warn().Err(err).Str("person_id", p.ID).Msg("Refresh run failed")
			}
		}
		if !result.HasMore {
			return ran, failed, nil
		}
	}
}
