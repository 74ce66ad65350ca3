// Package resilience wraps outbound calls with a circuit breaker and a
// bounded exponential retry. Both the text-generation clients and the source
// adapters' HTTP client go through it.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/luminaries/internal/logging"
)

// ErrCircuitOpen is returned when the circuit breaker is in open state
// and rejects requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the configuration for the circuit breaker.
type BreakerConfig struct {
	// Name labels log lines and metrics.
	Name string

	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in half-open
	// state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

// BreakerMetrics holds counters about breaker operations.
type BreakerMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker wraps gobreaker with context handling and counters.
//
// When closed, requests pass through. After MaxFailures consecutive failures
// the circuit opens and rejects all requests with ErrCircuitOpen. After
// Timeout it half-opens and lets HalfOpenMaxSuccesses probes through.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
	config  BreakerConfig
	mu      sync.RWMutex
	metrics BreakerMetrics
}

// NewBreaker creates a breaker named name with the default thresholds.
func NewBreaker(name string) *Breaker {
	return NewBreakerWithConfig(BreakerConfig{
		Name:                 name,
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewBreakerWithConfig creates a breaker with custom configuration.
func NewBreakerWithConfig(config BreakerConfig) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 1
	}
	b := &Breaker{config: config}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return b
}

// Execute runs fn through the breaker.
// If the circuit is open, it returns ErrCircuitOpen immediately.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		b.record(false)
		return nil, err
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})

	b.record(err == nil)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

// Metrics returns a snapshot of the breaker counters.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := b.breaker.Counts()
	m := b.metrics
	m.ConsecutiveSuccesses = counts.ConsecutiveSuccesses
	m.ConsecutiveFailures = counts.ConsecutiveFailures
	return m
}

// isSuccessful treats client errors (4xx other than 429) as healthy
// responses: the remote answered, the request was just wrong.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500 && statusErr.StatusCode != 429
	}
	return false
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.TotalRequests++
	if ok {
		b.metrics.TotalSuccesses++
	} else {
		b.metrics.TotalFailures++
	}
}
