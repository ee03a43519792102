// Package circuitbreaker guards a flaky dependency with the usual
// closed, open, half-open state machine. The websocket bridge wraps
// its command round-trips in one so a dead bridge fails fast instead
// of stacking up ack timeouts.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MaxHalfOpenRequests caps in-flight probes while half-open.
	MaxHalfOpenRequests int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 3,
	}
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	halfOpenSent int
	changedAt    time.Time
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now, changedAt: time.Now()}
}

// Allow reports whether a request may proceed. Conclude allowed
// requests with RecordSuccess or RecordFailure once the outcome says
// something about the dependency's health.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.changedAt) < cb.cfg.Timeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenSent++
		return true
	case StateHalfOpen:
		if cb.halfOpenSent >= cb.cfg.MaxHalfOpenRequests {
			return false
		}
		cb.halfOpenSent++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes = 0
	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// One failed probe is enough to re-open.
		cb.transition(StateOpen)
	}
}

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenSent = 0
}
