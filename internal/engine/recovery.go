package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/pkg/types"
)

// RecoverPending queues persons a previous process left unfinished. Persons
// still marked building hold a lock nobody will release, so they are moved
// to error first. This assumes one engine process per store.
// It returns the number of jobs queued.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	logging.Info().Msg("Starting run recovery")

	stale, err := e.store.ListPersonIDsByStatus(ctx, types.StatusBuilding)
	if err != nil {
		return 0, fmt.Errorf("list building persons: %w", err)
	}
	for _, id := range stale {
		if err := e.store.FinishRun(ctx, id, types.StatusError); err != nil {
			logging.Error().Err(err).Str("person_id", id).Msg("Failed to release stale run lock")
		}
	}

	pending, err := e.store.ListPersonIDsByStatus(ctx, types.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending persons: %w", err)
	}

	queued := 0
	for _, id := range append(stale, pending...) {
		if e.queueJob(e.createJob(id, types.TriggerRecover, 0)) {
			queued++
			continue
		}
		// Left in its current status; the next start picks it up again.
		logging.Warn().Str("person_id", id).Msg("Queue full, person not recovered")
	}

	logging.Info().Int("queued", queued).Int("stale", len(stale)).Int("pending", len(pending)).Msg("Recovery complete")
	return queued, nil
}
