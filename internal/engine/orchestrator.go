package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/metrics"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// Run executes one enrichment run synchronously.
//
// It returns ErrRunInProgress without touching the person when another run
// holds the building lock, and an error wrapping ErrFatal when the run ended
// with status error. Adapter and extraction failures are recorded as stage
// outcomes and never fail the run.
func (e *Engine) Run(ctx context.Context, job *Job) (*types.EnrichmentRun, error) {
	if job == nil || job.PersonID == "" {
		return nil, fmt.Errorf("%w: person id is required", storage.ErrInvalidInput)
	}
	trigger := job.Trigger
	if trigger == "" {
		trigger = types.TriggerRefresh
	}

	runID := uuid.New().String()
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	}
	ctx = logging.WithPersonID(ctx, job.PersonID)

	ok, err := e.store.TryBeginRun(ctx, job.PersonID, runID)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	if !ok {
		metrics.RunsTotal.WithLabelValues(string(trigger), "in_progress").Inc()
		return nil, ErrRunInProgress
	}

	run := &types.EnrichmentRun{
		ID:        runID,
		PersonID:  job.PersonID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Status:    types.StatusBuilding,
	}

	// Bookkeeping outlives the run context so a cancelled run still
	// releases its lock and records why it stopped.
	dbCtx := context.WithoutCancel(ctx)
	if err := e.store.CreateRun(dbCtx, run); err != nil {
		return e.finish(dbCtx, run, "run", err)
	}
	logging.Ctx(ctx).Info().Str("run_id", run.ID).Str("trigger", string(trigger)).Msg("Run started")
	e.notify(true, run)

	runCtx, cancel := context.WithTimeout(ctx, e.config.RunTimeout)
	defer cancel()

	stage, err := e.runStages(runCtx, job, run)
	return e.finish(dbCtx, run, stage, err)
}

// runStages executes the pipeline in order. It returns the failing stage on
// a fatal error.
func (e *Engine) runStages(ctx context.Context, job *Job, run *types.EnrichmentRun) (string, error) {
	person, changed, err := e.identityStage(ctx, job, run)
	if err != nil {
		return types.StageIdentity, err
	}

	id := person.Identity()
	history := e.history(ctx, person.ID, run.ID, changed)
	results := e.fetchStage(ctx, id, history, run)

	if err := e.normalizeStage(ctx, id, results, run); err != nil {
		return types.StageNormalize, err
	}
	if stage, err := e.extractStage(ctx, person, history, run); err != nil {
		return stage, err
	}
	if err := e.cardsStage(ctx, person, run); err != nil {
		return types.StageCards, err
	}
	if err := e.scoreStage(ctx, person.ID, run); err != nil {
		return types.StageScore, err
	}
	return "", nil
}

// finish moves the person to ready or error and stores the run.
func (e *Engine) finish(ctx context.Context, run *types.EnrichmentRun, stage string, cause error) (*types.EnrichmentRun, error) {
	log := logging.Ctx(ctx).With().Str("run_id", run.ID).Logger()

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = types.StatusReady

	var result error
	if cause != nil {
		run.Status = types.StatusError
		run.Error = fmt.Sprintf("%s: %v", stage, cause)
		if stage != "" {
			run.SetStage(stage, types.StageFailed)
		}
		result = fmt.Errorf("%w: %s: %w", ErrFatal, stage, cause)
	}

	if err := e.store.FinishRun(ctx, run.PersonID, run.Status); err != nil {
		log.Error().Err(err).Str("status", string(run.Status)).Msg("Failed to release run lock")
		if result == nil {
			result = fmt.Errorf("%w: finish: %w", ErrFatal, err)
		}
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to store run outcome")
	}

	for name, outcome := range run.Stages {
		metrics.RecordStage(name, string(outcome))
	}
	metrics.RecordRun(string(run.Trigger), string(run.Status), finished.Sub(run.StartedAt))

	if result != nil {
		log.Error().Err(cause).Str("stage", stage).Msg("Run ended with error")
	} else {
		log.Info().
			Int("fetched", run.Counts.Fetched).
			Int("inserted", run.Counts.Inserted).
			Int("updated", run.Counts.Updated).
			Int("rejected", run.Counts.Rejected).
			Int("career_events", run.Counts.CareerEvents).
			Dur("duration", finished.Sub(run.StartedAt)).
			Msg("Run finished")
	}

	e.notify(false, run)
	return run, result
}

// historyDepth bounds how many earlier runs are consulted for cursors.
const historyDepth = 50

// history returns the person's earlier runs, newest first, back to and
// including the last identity change. Older runs describe data that no longer
// exists. An identity change in this run yields no history.
func (e *Engine) history(ctx context.Context, personID, runID string, identityChanged bool) []*types.EnrichmentRun {
	if identityChanged {
		return nil
	}
	runs, err := e.store.ListRuns(ctx, personID, historyDepth)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Could not list previous runs, fetching everything")
		return nil
	}
	out := make([]*types.EnrichmentRun, 0, len(runs))
	for _, r := range runs {
		if r.ID == runID {
			continue
		}
		out = append(out, r)
		if _, ok := r.Stages[types.StageReset]; ok {
			break
		}
	}
	return out
}

// sourceCursor returns the start of the last run in which kind fetched
// successfully and its items were stored, so an unchanged identity fetches
// incrementally per source. Nil means fetch everything.
func sourceCursor(history []*types.EnrichmentRun, kind types.SourceKind) *time.Time {
	stage := types.SourceStage(kind)
	for _, r := range history {
		if r.Stages[stage] == types.StageSuccess && r.Stages[types.StageNormalize] == types.StageSuccess {
			t := r.StartedAt
			return &t
		}
	}
	return nil
}

// extractionCursor returns when the last run that completed both timeline
// and course extraction finished. Nil means no such run.
func extractionCursor(history []*types.EnrichmentRun) *time.Time {
	for _, r := range history {
		if r.FinishedAt != nil &&
			r.Stages[types.StageTimeline] == types.StageSuccess &&
			r.Stages[types.StageCourses] == types.StageSuccess {
			return r.FinishedAt
		}
	}
	return nil
}

// writtenSince reports whether any item was inserted or updated after t.
func writtenSince(items []*types.ContentItem, t *time.Time) bool {
	if t == nil {
		return true
	}
	for _, it := range items {
		if it.FetchedAt.After(*t) {
			return true
		}
	}
	return false
}
