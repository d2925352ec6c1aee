// Package circuitbreaker protects the semantic capability client: after a
// run of failures the circuit opens and semantic analysis is skipped outright
// instead of waiting on a dead backend.
package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// State represents the circuit state.
type State int32

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

// ErrCircuitOpen is returned when the circuit rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count in half-open that closes it.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing half-open.
	Timeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker is a lock-free consecutive-failure breaker.
type CircuitBreaker struct {
	config *Config

	state           int32
	lastFailureNano int64

	consecutiveFailures  int32
	consecutiveSuccesses int32
}

// New creates a circuit breaker.
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &CircuitBreaker{config: config, state: int32(StateClosed)}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	state := State(atomic.LoadInt32(&cb.state))
	if state == StateOpen && cb.timeoutElapsed() {
		return StateHalfOpen
	}
	return state
}

// Execute runs fn under circuit protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	switch cb.State() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		atomic.StoreInt32(&cb.state, int32(StateHalfOpen))
	case StateClosed:
	}

	err := fn(ctx)
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) timeoutElapsed() bool {
	last := atomic.LoadInt64(&cb.lastFailureNano)
	return time.Since(time.Unix(0, last)) >= cb.config.Timeout
}

func (cb *CircuitBreaker) onFailure() {
	atomic.StoreInt64(&cb.lastFailureNano, time.Now().UnixNano())
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	failures := atomic.AddInt32(&cb.consecutiveFailures, 1)

	if State(atomic.LoadInt32(&cb.state)) == StateHalfOpen ||
		int(failures) >= cb.config.FailureThreshold {
		atomic.StoreInt32(&cb.state, int32(StateOpen))
	}
}

func (cb *CircuitBreaker) onSuccess() {
	atomic.StoreInt32(&cb.consecutiveFailures, 0)

	if State(atomic.LoadInt32(&cb.state)) == StateHalfOpen {
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if int(successes) >= cb.config.SuccessThreshold {
			atomic.StoreInt32(&cb.state, int32(StateClosed))
			atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		}
	}
}
