// Package breaker provides a small circuit breaker used to stop calling a
// dependency (the redis cache tier) after repeated failures.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds circuit breaker configuration.
type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenMaxReqs is the number of probes allowed, and the number of
	// successes needed to close the circuit again.
	HalfOpenMaxReqs int
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	lastFailure      time.Time
	halfOpenRequests int
}

// New creates a new circuit breaker. Zero config values get defaults.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxReqs <= 0 {
		cfg.HalfOpenMaxReqs = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.cfg.Name, ErrOpen)
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed, moving an expired open circuit
// to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var change func()
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
			change = cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.halfOpenRequests < cb.cfg.HalfOpenMaxReqs {
			cb.halfOpenRequests++
			allowed = true
		}
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
	return allowed
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var change func()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMaxReqs {
			change = cb.setState(StateClosed)
		}
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var change func()

	cb.lastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			change = cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// 探测失败，重新打开
		change = cb.setState(StateOpen)
	}
	cb.mu.Unlock()

	if change != nil {
		change()
	}
}

// setState must be called with mu held. It resets the per-state counters and
// returns the notification to run after unlocking.
func (cb *CircuitBreaker) setState(to State) func() {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenRequests = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}

	if cb.cfg.OnStateChange == nil || from == to {
		return nil
	}
	name, notify := cb.cfg.Name, cb.cfg.OnStateChange
	return func() { notify(name, from, to) }
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.setState(StateClosed)
	cb.mu.Unlock()

	if change != nil {
		change()
	}
}

// Stats holds circuit breaker statistics.
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.cfg.Name,
		State:           cb.state,
		Failures:        cb.failures,
		LastFailureTime: cb.lastFailure,
	}
}
