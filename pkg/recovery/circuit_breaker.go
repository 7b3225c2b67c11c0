package recovery

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - normal operation, calls pass through
	StateClosed CircuitState = iota
	// StateOpen - cooling down after failures, calls fail fast
	StateOpen
	// StateHalfOpen - cooldown over, one trial call allowed
	StateHalfOpen
)

// String returns the string representation of the circuit state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned (wrapped) when a call is rejected during cooldown
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards an operation that must not be retried in a tight loop,
// such as opening the serial adapter. After maxFailures consecutive failures
// calls are rejected for the cooldown, then a single trial call decides
// whether the circuit closes again or restarts the cooldown.
type CircuitBreaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	state           CircuitState
	failures        int
	lastFailureTime time.Time
	lastError       error
	trialInFlight   bool

	mu sync.Mutex
}

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	MaxFailures int           // Default: 1
	Cooldown    time.Duration // Default: 120 seconds
}

// NewCircuitBreaker creates a new circuit breaker with given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 120 * time.Second
	}
	return &CircuitBreaker{
		maxFailures: config.MaxFailures,
		cooldown:    config.Cooldown,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Call executes fn if the circuit allows it.
// While open it returns an error wrapping ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.cooldown {
			return fmt.Errorf("%w (failed %d times, retry in %.0fs, last error: %v)",
				ErrCircuitOpen, cb.failures, cb.remainingLocked().Seconds(), cb.lastError)
		}
		cb.state = StateHalfOpen
		fallthrough
	case StateHalfOpen:
		if cb.trialInFlight {
			return fmt.Errorf("%w (trial call in progress)", ErrCircuitOpen)
		}
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false
	if err == nil {
		cb.state = StateClosed
		cb.failures = 0
		cb.lastError = nil
		return
	}

	cb.failures++
	cb.lastFailureTime = cb.now()
	cb.lastError = err
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) remainingLocked() time.Duration {
	if cb.state != StateOpen {
		return 0
	}
	if r := cb.cooldown - cb.now().Sub(cb.lastFailureTime); r > 0 {
		return r
	}
	return 0
}

// Remaining returns how long calls will still be rejected
func (cb *CircuitBreaker) Remaining() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.remainingLocked()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetFailures returns the consecutive failure count
func (cb *CircuitBreaker) GetFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
