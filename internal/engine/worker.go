package engine

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/metrics"
	"github.com/scrypster/luminaries/internal/storage"
)

// worker processes jobs until the queue is closed.
func (e *Engine) worker(ctx context.Context, workerID int, queue <-chan *Job) {
	defer e.workerWaitGroup.Done()

	logging.Debug().Int("worker", workerID).Msg("Enrichment worker started")

	for job := range queue {
		metrics.QueueDepth.Set(float64(len(queue)))
		e.processJob(ctx, workerID, job)
	}

	logging.Debug().Int("worker", workerID).Msg("Enrichment worker stopped")
}

// processJob runs one job and decides whether it is retried.
//
// A held lock or a transient store error is retried with quadratic backoff.
// A fatal run error is not: the person is left in error status and the
// next trigger resumes it.
func (e *Engine) processJob(ctx context.Context, workerID int, job *Job) {
	log := logging.Ctx(ctx).With().Int("worker", workerID).Str("person_id", job.PersonID).
		Str("trigger", string(job.Trigger)).Int("attempt", job.Attempt).Logger()

	if ctx.Err() != nil {
		log.Warn().Msg("Dropping job, shutdown in progress")
		return
	}

	if job.Attempt > 0 {
		backoff := time.Duration(job.Attempt*job.Attempt) * 100 * time.Millisecond // 100ms, 400ms, 900ms...
		log.Debug().Dur("backoff", backoff).Msg("Waiting before retry")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}

	run, err := e.Run(ctx, job)
	switch {
	case err == nil:
		log.Info().Str("run_id", run.ID).Msg("Run completed")
	case errors.Is(err, ErrFatal):
		log.Error().Err(err).Msg("Run failed")
	case errors.Is(err, storage.ErrNotFound):
		log.Warn().Msg("Person no longer exists, dropping job")
	case errors.Is(err, ErrRunInProgress):
		if !e.requeueJob(ctx, job) {
			log.Warn().Msg("Run still in progress elsewhere, dropping job")
		}
	default:
		log.Warn().Err(err).Msg("Run could not start")
		e.requeueJob(ctx, job)
	}
}

// startWorkerPool starts the worker goroutines.
func (e *Engine) startWorkerPool(ctx context.Context) {
	for i := 0; i < e.config.Workers; i++ {
		e.workerWaitGroup.Add(1)
		go e.worker(ctx, i, e.queue)
	}

	logging.Info().Int("workers", e.config.Workers).Msg("Started enrichment workers")
}

// stopWorkerPool closes the queue and waits for workers to drain.
func (e *Engine) stopWorkerPool(ctx context.Context) error {
	e.closeQueue()

	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info().Msg("All enrichment workers finished gracefully")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		logging.Warn().Int("remaining", e.QueueLength()).Msg("Shutdown timeout reached, queued jobs may be dropped")
		return nil
	case <-ctx.Done():
		logging.Warn().Int("remaining", e.QueueLength()).Msg("Context cancelled, queued jobs may be dropped")
		return ctx.Err()
	}
}
