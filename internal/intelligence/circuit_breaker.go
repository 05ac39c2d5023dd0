package intelligence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/fileflow/pkg/log"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// MaxFailures consecutive failures trip the breaker. Default 3.
	MaxFailures uint32

	// Timeout is how long the breaker stays open before probing. Default 30s.
	Timeout time.Duration

	// HalfOpenMaxRequests successes in half-open close it again. Default 2.
	HalfOpenMaxRequests uint32
}

// BreakerMetrics counts calls that went through the breaker.
type BreakerMetrics struct {
	TotalRequests        uint64
	TotalFailures        uint64
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

// CircuitBreaker keeps a failing intelligence endpoint from being hammered
// once per file while it is down.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	total  uint64
	failed uint64
}

// NewCircuitBreaker builds a breaker named name. Zero config fields take
// their defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = 2
	}

	return &CircuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenMaxRequests,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("intelligence: circuit breaker state changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Execute runs fn unless the breaker is open or ctx is already done.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		cb.record(err)
		return nil, err
	}

	result, err := cb.breaker.Execute(fn)
	cb.record(err)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.total++
	if err != nil {
		cb.failed++
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}

// Metrics returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	counts := cb.breaker.Counts()
	return BreakerMetrics{
		TotalRequests:        cb.total,
		TotalFailures:        cb.failed,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}
