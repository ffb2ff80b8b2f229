// Package circuitbreaker stops calling an external service after repeated
// failures and probes it again after a cooldown.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Options configures a CircuitBreaker. Zero values take defaults.
type Options struct {
	MaxFailures      uint32
	Cooldown         time.Duration
	HalfOpenMaxCalls uint32
	// IsFailure decides whether an error counts toward tripping. Nil counts every error.
	IsFailure func(error) bool
	Logger    *logrus.Logger
	Now       func() time.Time
}

// CircuitBreaker implements the circuit breaker pattern for external service calls
type CircuitBreaker struct {
	name string
	opts Options

	mu              sync.Mutex
	state           State
	failures        uint32
	lastFailureTime time.Time
	halfOpenCalls   uint32
	successCount    uint32
	requestCount    uint32
}

// New creates a circuit breaker
func New(name string, opts Options) *CircuitBreaker {
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Minute
	}
	if opts.HalfOpenMaxCalls == 0 {
		opts.HalfOpenMaxCalls = 1
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return err != nil }
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CircuitBreaker{name: name, opts: opts, state: StateClosed}
}

// Execute runs fn if the breaker allows it. When open, fn is not called and a
// *CircuitBreakerError is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		return &CircuitBreakerError{Name: cb.name, State: StateOpen, RetryAt: cb.retryAt()}
	}

	err := fn(ctx)

	if err != nil && cb.opts.IsFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.opts.Now().Sub(cb.lastFailureTime) < cb.opts.Cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.successCount = 0
		cb.opts.Logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateHalfOpen.String(),
		}).Info("Circuit breaker transitioned to half-open")
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.opts.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.opts.HalfOpenMaxCalls {
			cb.reset()
			cb.opts.Logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           StateClosed.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		cb.failures = 0
		cb.successCount++
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.opts.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.opts.MaxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.opts.Logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"state":           StateOpen.String(),
	}).Warn("Circuit breaker opened due to failures")
}

func (cb *CircuitBreaker) reset() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
}

func (cb *CircuitBreaker) retryAt() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailureTime.Add(cb.opts.Cooldown)
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		StateName:       cb.state.String(),
		Failures:        cb.failures,
		Requests:        cb.requestCount,
		Successes:       cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name            string    `json:"name"`
	State           State     `json:"-"`
	StateName       string    `json:"state"`
	Failures        uint32    `json:"failures"`
	Requests        uint32    `json:"requests"`
	Successes       uint32    `json:"successes"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// CircuitBreakerError is returned by Execute while the circuit is open
type CircuitBreakerError struct {
	Name    string
	State   State
	RetryAt time.Time
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s until %s", e.Name, e.State, e.RetryAt.UTC().Format(time.RFC3339))
}

// IsCircuitBreakerError reports whether err is or wraps a *CircuitBreakerError
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
