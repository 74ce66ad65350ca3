// Package engine orchestrates enrichment runs. A run moves a person through
// pending -> building -> ready|error, fetching from every source adapter,
// normalizing what comes back, extracting a career timeline and courses,
// and scoring the result. Runs are queued and executed by a worker pool.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/luminaries/internal/config"
	"github.com/scrypster/luminaries/pkg/types"
)

var (
	// ErrRunInProgress is returned when another run holds the person's
	// building lock. The queue requeues such jobs.
	ErrRunInProgress = errors.New("engine: run already in progress")

	// ErrFatal wraps failures that end a run with status error: the identity
	// could not be resolved or a required write was rejected. Data written
	// before the failure is kept, and a new trigger resumes.
	ErrFatal = errors.New("engine: fatal run error")

	// ErrQueueFull is returned when a job cannot be queued.
	ErrQueueFull = errors.New("engine: queue full")

	// ErrNotStarted is returned by operations that need the worker pool.
	ErrNotStarted = errors.New("engine: not started")
)

// Job is one queued request to enrich a person.
type Job struct {
	// PersonID is the person to enrich.
	PersonID string

	// Trigger records what asked for the run.
	Trigger types.Trigger

	// IdentityKey, when set and different from the stored key, replaces it
	// and clears every previously derived record before fetching.
	IdentityKey string

	// Aliases and Links are merged into the profile before fetching.
	Aliases []string
	Links   []types.Link

	// Timestamp is when the job was queued.
	Timestamp time.Time

	// Attempt tracks retry attempts for this job.
	Attempt int
}

// Config holds configuration for the engine.
type Config struct {
	// Workers is the number of run worker goroutines (default: 2).
	Workers int

	// QueueSize is the size of the job queue buffer (default: 100).
	QueueSize int

	// MaxAttempts bounds how often a job is tried before it is dropped (default: 3).
	MaxAttempts int

	// AdapterLimit bounds concurrently running adapters within one run (default: 4).
	AdapterLimit int

	// RunTimeout bounds one run end to end (default: 10m).
	RunTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for workers to drain on shutdown (default: 30s).
	ShutdownTimeout time.Duration

	// RecoverOnStart queues persons left pending or building by a previous process.
	RecoverOnStart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       100,
		MaxAttempts:     3,
		AdapterLimit:    4,
		RunTimeout:      10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		RecoverOnStart:  true,
	}
}

// ConfigFrom maps the application configuration onto engine settings.
func ConfigFrom(cfg config.EngineConfig) Config {
	c := DefaultConfig()
	c.Workers = cfg.Workers
	c.QueueSize = cfg.QueueSize
	c.MaxAttempts = cfg.MaxAttempts
	c.AdapterLimit = cfg.AdapterLimit
	c.RunTimeout = cfg.RunTimeout
	c.RecoverOnStart = cfg.RecoverOnStart
	return c
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be >= 1, got %d", c.Workers)
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be >= 1, got %d", c.MaxAttempts)
	}

	if c.AdapterLimit < 1 {
		return fmt.Errorf("AdapterLimit must be >= 1, got %d", c.AdapterLimit)
	}

	if c.RunTimeout <= 0 {
		return fmt.Errorf("RunTimeout must be > 0, got %v", c.RunTimeout)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}

	return nil
}
