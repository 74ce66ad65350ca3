package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scrypster/luminaries/internal/events"
	"github.com/scrypster/luminaries/internal/extract"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/normalize"
	"github.com/scrypster/luminaries/internal/scoring"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// Dependencies are the collaborators a run needs. Every field is optional:
// a nil knowledge base marks the identity stage unconfigured, a nil
// extractor marks timeline and course extraction unconfigured.
type Dependencies struct {
	KnowledgeBase identity.KnowledgeBase
	Adapters      []sources.Adapter
	Extractor     *extract.Extractor
	Filter        *normalize.Filter
	Feed          *scoring.Feed
}

// Engine runs enrichment for persons, either directly through Run or
// asynchronously through a worker pool fed by Enqueue and the event bus.
type Engine struct {
	// Configuration
	config Config

	// Storage layer
	store storage.Store

	// Collaborators
	kb        identity.KnowledgeBase
	adapters  []sources.Adapter
	extractor *extract.Extractor
	filter    *normalize.Filter
	feed      *scoring.Feed

	// Work queue
	queue           chan *Job
	queueMu         sync.RWMutex
	queueClosed     bool
	workerWaitGroup sync.WaitGroup
	workerCtx       context.Context
	workerCancel    context.CancelFunc

	// State management
	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	// Callbacks
	cbMu          sync.RWMutex
	onRunStarted  func(run *types.EnrichmentRun)
	onRunFinished func(run *types.EnrichmentRun)
}

// New creates an engine over store. Use DefaultConfig() for sensible defaults.
func New(store storage.Store, deps Dependencies, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Filter == nil {
		deps.Filter = normalize.NewFilter(nil, nil)
	}

	return &Engine{
		config:    cfg,
		store:     store,
		kb:        deps.KnowledgeBase,
		adapters:  deps.Adapters,
		extractor: deps.Extractor,
		filter:    deps.Filter,
		feed:      deps.Feed,
		queue:     make(chan *Job, cfg.QueueSize),
	}, nil
}

// SetOnRunStarted sets a callback fired when a run acquires its lock.
func (e *Engine) SetOnRunStarted(callback func(run *types.EnrichmentRun)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onRunStarted = callback
}

// SetOnRunFinished sets a callback fired when a run reaches ready or error.
// It is useful for pushing status to websocket clients.
func (e *Engine) SetOnRunFinished(callback func(run *types.EnrichmentRun)) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.onRunFinished = callback
}

func (e *Engine) notify(started bool, run *types.EnrichmentRun) {
	e.cbMu.RLock()
	cb := e.onRunFinished
	if started {
		cb = e.onRunStarted
	}
	e.cbMu.RUnlock()
	if cb != nil {
		cb(run)
	}
}

// Start starts the worker pool and, when configured, recovers persons left
// unfinished by a previous process.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	logging.Info().Int("workers", e.config.Workers).Int("queue_size", e.config.QueueSize).Msg("Starting enrichment engine")

	e.queueMu.Lock()
	if e.queueClosed {
		e.queue = make(chan *Job, e.config.QueueSize)
		e.queueClosed = false
	}
	e.queueMu.Unlock()

	e.workerCtx, e.workerCancel = context.WithCancel(ctx)
	e.startWorkerPool(e.workerCtx)

	if e.config.RecoverOnStart {
		// Non-blocking so Start returns quickly.
		go func() {
			if _, err := e.RecoverPending(ctx); err != nil {
				logging.Error().Err(err).Msg("Run recovery failed")
			}
		}()
	}

	e.started = true
	return nil
}

// Subscribe routes PersonEvents from bus into the queue until ctx ends.
func (e *Engine) Subscribe(ctx context.Context, bus *events.Bus) error {
	return bus.Subscribe(ctx, e.HandleEvent)
}

// HandleEvent queues a run for ev.
func (e *Engine) HandleEvent(ctx context.Context, ev events.PersonEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	job := e.createJob(ev.PersonID, ev.Event, 0)
	job.IdentityKey = ev.Identity
	job.Aliases = ev.Aliases
	job.Links = ev.Links
	if err := e.Enqueue(job); err != nil {
		return err
	}
	logging.Ctx(ctx).Debug().Str("person_id", ev.PersonID).Str("event", string(ev.Event)).Msg("Run queued")
	return nil
}

// Enqueue queues job for the worker pool.
func (e *Engine) Enqueue(job *Job) error {
	e.mu.RLock()
	canQueue := e.started && !e.shuttingDown
	e.mu.RUnlock()
	if !canQueue {
		return ErrNotStarted
	}
	if !e.queueJob(job) {
		return ErrQueueFull
	}
	return nil
}

// Shutdown closes the queue and waits for workers to drain (with timeout).
// Runs cancelled mid-flight end with status error and resume on the next
// trigger.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return ErrNotStarted
	}

	logging.Info().Msg("Shutting down enrichment engine")

	// Prevents requeueing.
	e.shuttingDown = true
	if e.workerCancel != nil {
		e.workerCancel()
	}

	if err := e.stopWorkerPool(ctx); err != nil {
		logging.Warn().Err(err).Msg("Worker pool shutdown had errors")
	}

	e.started = false
	e.shuttingDown = false
	return nil
}

func (e *Engine) createJob(personID string, trigger types.Trigger, attempt int) *Job {
	return &Job{
		PersonID:  personID,
		Trigger:   trigger,
		Timestamp: time.Now(),
		Attempt:   attempt,
	}
}
