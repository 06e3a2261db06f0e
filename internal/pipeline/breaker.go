package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

// CircuitState represents the state of the AI service circuit breaker
type CircuitState int

const (
	// StateClosed means calls flow normally
	StateClosed CircuitState = iota
	// StateHalfOpen means a probe call is testing whether the service recovered
	StateHalfOpen
	// StateOpen means calls are rejected until the cooldown elapses
	StateOpen
)

// String returns the state name used in logs, events and metrics
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the breaker rejects a call
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned when the half-open probe budget is spent
	ErrTooManyProbes = errors.New("circuit breaker is half-open, probe in flight")
)

// BreakerConfig holds circuit breaker tuning
type BreakerConfig struct {
	MaxFailures         int           // consecutive failures before opening
	Cooldown            time.Duration // open -> half-open delay
	HalfOpenMaxRequests int           // probes allowed while half-open
}

// DefaultBreakerConfig returns the default breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Cooldown:            30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// BreakerConfigFromModel maps pipeline configuration to breaker tuning
func BreakerConfigFromModel(cfg model.PipelineConfig) BreakerConfig {
	bc := DefaultBreakerConfig()
	if cfg.BreakerMaxFailures > 0 {
		bc.MaxFailures = cfg.BreakerMaxFailures
	}
	if cfg.BreakerCooldown > 0 {
		bc.Cooldown = cfg.BreakerCooldown
	}
	if cfg.BreakerHalfOpenMax > 0 {
		bc.HalfOpenMaxRequests = cfg.BreakerHalfOpenMax
	}
	return bc
}

// Validate checks the breaker configuration
func (c BreakerConfig) Validate() error {
	if c.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be at least 1, got %d", c.MaxFailures)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %v", c.Cooldown)
	}
	if c.HalfOpenMaxRequests < 1 {
		return fmt.Errorf("half_open_max_requests must be at least 1, got %d", c.HalfOpenMaxRequests)
	}
	return nil
}

// Transition describes one breaker state change
type Transition struct {
	From     CircuitState
	To       CircuitState
	Failures int
	At       time.Time
}

// CircuitBreaker guards calls to the upstream AI service. It opens after
// MaxFailures consecutive failures, lets a probe through after Cooldown, and
// closes again on a successful probe or a manual Reset.
type CircuitBreaker struct {
	config           BreakerConfig
	state            CircuitState
	failures         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenRequests int
	mu               sync.RWMutex

	logger   *slog.Logger
	onChange func(Transition)
}

// NewCircuitBreaker creates a closed breaker. onChange, if set, is called
// after every state transition outside the breaker lock.
func NewCircuitBreaker(config BreakerConfig, logger *slog.Logger, onChange func(Transition)) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		logger.Warn("Circuit breaker config invalid, using defaults", "error", err)
		config = DefaultBreakerConfig()
	}
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		logger:          logger,
		onChange:        onChange,
	}
}

// Call runs fn if the breaker allows it and records the outcome.
// Context cancellation and model.ErrBadInput are not counted as service
// failures.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	tr, rejected := cb.beforeCall()
	cb.notify(tr)
	if rejected != nil {
		return fmt.Errorf("AI service call rejected (%d consecutive failures): %w", cb.Failures(), rejected)
	}

	err := fn(ctx)
	cb.notify(cb.afterCall(err))
	return err
}

func (cb *CircuitBreaker) beforeCall() (*Transition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil, nil

	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Cooldown {
			tr := cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return tr, nil
		}
		return nil, ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxRequests {
			return nil, ErrTooManyProbes
		}
		cb.halfOpenRequests++
		return nil, nil

	default:
		return nil, ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) *Transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.lastFailureTime = time.Time{}
		if cb.state == StateHalfOpen {
			return cb.setState(StateClosed)
		}
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrBadInput) {
		// the call said nothing about the service; free the half-open slot
		if cb.state == StateHalfOpen && cb.halfOpenRequests > 0 {
			cb.halfOpenRequests--
		}
		return nil
	}

	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			return cb.setState(StateOpen)
		}
	case StateHalfOpen:
		return cb.setState(StateOpen)
	}
	return nil
}

// setState must be called with mu held
func (cb *CircuitBreaker) setState(newState CircuitState) *Transition {
	if cb.state == newState {
		return nil
	}

	oldState := cb.state
	now := time.Now()
	cb.state = newState
	cb.lastStateChange = now
	if newState != StateHalfOpen {
		cb.halfOpenRequests = 0
	}

	cb.logger.Info("Circuit breaker state transition",
		"old_state", oldState.String(),
		"new_state", newState.String(),
		"consecutive_failures", cb.failures,
		"last_failure", cb.lastFailureTime.Format(time.RFC3339))

	return &Transition{From: oldState, To: newState, Failures: cb.failures, At: now}
}

func (cb *CircuitBreaker) notify(tr *Transition) {
	if tr != nil && cb.onChange != nil {
		cb.onChange(*tr)
	}
}

// State returns the current state. An open breaker past its cooldown still
// reports open until the next call probes it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current number of consecutive failures
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset manually closes the breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.lastFailureTime = time.Time{}
	cb.halfOpenRequests = 0
	tr := cb.setState(StateClosed)
	cb.mu.Unlock()

	cb.notify(tr)
}

// IsHealthy reports whether the breaker is closed
func (cb *CircuitBreaker) IsHealthy() bool {
	return cb.State() == StateClosed
}

// BreakerStats is a snapshot of breaker state
type BreakerStats struct {
	State            CircuitState
	Failures         int
	LastFailureTime  time.Time
	LastStateChange  time.Time
	HalfOpenRequests int
}

// Stats returns current breaker statistics
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return BreakerStats{
		State:            cb.state,
		Failures:         cb.failures,
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
		HalfOpenRequests: cb.halfOpenRequests,
	}
}
