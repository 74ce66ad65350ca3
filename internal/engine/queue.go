package engine

import (
	"context"
	"time"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/metrics"
)

// queueJob attempts to queue a job without blocking.
// Returns true if the job was queued, false if the queue is full or closed.
func (e *Engine) queueJob(job *Job) bool {
	// Shutdown in progress
	if e.workerCtx != nil && e.workerCtx.Err() != nil {
		return false
	}

	e.queueMu.RLock()
	defer e.queueMu.RUnlock()
	if e.queueClosed {
		return false
	}

	select {
	case e.queue <- job:
		metrics.QueueDepth.Set(float64(len(e.queue)))
		return true
	default:
		metrics.QueueDropped.Inc()
		logging.Warn().Int("queue_size", e.config.QueueSize).Str("person_id", job.PersonID).
			Msg("Enrichment queue full, dropping job")
		return false
	}
}

// requeueJob puts a job back after a failed attempt.
// Returns false if max attempts were exceeded or the queue is full.
func (e *Engine) requeueJob(ctx context.Context, job *Job) bool {
	log := logging.Ctx(ctx).With().Str("person_id", job.PersonID).Int("attempt", job.Attempt).Logger()

	if e.workerCtx != nil && e.workerCtx.Err() != nil {
		log.Warn().Msg("Not requeueing job, shutdown in progress")
		return false
	}

	if job.Attempt+1 >= e.config.MaxAttempts {
		log.Warn().Int("max_attempts", e.config.MaxAttempts).Msg("Max attempts exceeded, giving up")
		return false
	}

	job.Attempt++

	e.queueMu.RLock()
	defer e.queueMu.RUnlock()
	if e.queueClosed {
		return false
	}

	select {
	case e.queue <- job:
		metrics.JobRetries.Inc()
		log.Info().Int("max_attempts", e.config.MaxAttempts).Msg("Requeued job")
		return true
	case <-time.After(10 * time.Millisecond):
		metrics.QueueDropped.Inc()
		log.Warn().Msg("Failed to requeue job, queue timeout")
		return false
	}
}

// closeQueue stops accepting jobs. Workers drain what is left.
func (e *Engine) closeQueue() {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if !e.queueClosed {
		e.queueClosed = true
		close(e.queue)
	}
}

// QueueLength returns the current number of jobs in the queue.
func (e *Engine) QueueLength() int {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()
	return len(e.queue)
}
