package reliability

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

// CircuitBreaker guards the reconnect path against failure storms: after
// maxFailures consecutive failures, attempts are rejected until the cooldown
// elapses, then a single probe attempt is allowed through.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	state       CircuitBreakerState
}

// NewCircuitBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and allows a probe after cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) (*CircuitBreaker, error) {
	if maxFailures <= 0 {
		return nil, errors.New("maxFailures must be greater than 0")
	}
	if cooldown <= 0 {
		return nil, errors.New("cooldown must be greater than 0")
	}
	return &CircuitBreaker{maxFailures: maxFailures, cooldown: cooldown}, nil
}

// Execute runs fn if the breaker admits the attempt, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) <= cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures || cb.state == StateHalfOpen {
		cb.state = StateOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}
