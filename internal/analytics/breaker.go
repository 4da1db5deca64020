package analytics

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal
	StateOpen                         // failing, requests rejected
	StateHalfOpen                     // probing after the cool-down
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops beacon traffic towards a tracking host that keeps
// failing. It opens after failureThreshold consecutive failures, lets probes
// through after coolDown and closes again after successThreshold successful
// probes.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	now              func() time.Time

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	lastStateTime time.Time
}

func NewCircuitBreaker(failureThreshold, successThreshold int, coolDown time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 1
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		coolDown:         coolDown,
		now:              time.Now,
		state:            StateClosed,
		lastStateTime:    time.Now(),
	}
}

// Allow reports whether a request may be attempted now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastStateTime) >= cb.coolDown {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// caller holds mu
func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.lastStateTime = cb.now()
	cb.failureCount = 0
	cb.successCount = 0
}
