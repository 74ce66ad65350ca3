package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/normalize"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// SweepStats summarizes a corrective pass over every person.
type SweepStats struct {
	Persons   int `json:"persons"`
	Skipped   int `json:"skipped"` // building when visited
	Failed    int `json:"failed"`
	Retracted int `json:"retracted"`
	Restored  int `json:"restored"`
}

// Sweep re-applies the relevance filter to every stored item and re-scores
// every person. It runs without the building lock and skips persons whose
// run is in flight; a failure on one person is logged and the sweep goes on.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	n := normalize.New(e.store).WithFilter(e.filter)

	for page := 1; ; page++ {
		result, err := e.store.ListPersons(ctx, storage.ListOptions{Page: page, Limit: 200, SortBy: "created_at", SortOrder: "asc"})
		if err != nil {
			return stats, fmt.Errorf("list persons: %w", err)
		}

		for i := range result.Items {
			p := &result.Items[i]
			if p.Status == types.StatusBuilding {
				stats.Skipped++
				continue
			}
			stats.Persons++

			log := logging.Ctx(ctx).With().Str("person_id", p.ID).Logger()
			re, err := n.Reevaluate(ctx, p.Identity())
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Msg("Re-evaluation failed")
				continue
			}
			stats.Retracted += re.Retracted
			stats.Restored += re.Restored

			if _, err := e.rescore(ctx, p.ID); err != nil {
				stats.Failed++
				log.Warn().Err(err).Msg("Re-scoring failed")
			}
		}

		if !result.HasMore {
			break
		}
	}

	logging.Info().
		Int("persons", stats.Persons).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("retracted", stats.Retracted).
		Int("restored", stats.Restored).
		Msg("Sweep complete")
	return stats, ctx.Err()
}
