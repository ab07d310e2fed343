package publisher

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker sheds audit writes while the sink is failing. It opens after
// threshold consecutive failures. Once cooldown has passed a single probe is
// let through: success closes it, failure opens it for another cooldown.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state    breakerState
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
	if cb.threshold <= 0 {
		cb.threshold = 5
	}
	if cb.cooldown <= 0 {
		cb.cooldown = time.Minute
	}
	return cb
}

// Allow reports whether a write may go to the sink.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case breakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = breakerHalfOpen
		return true
	case breakerHalfOpen:
		// probe in flight
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.state = breakerClosed
	cb.failures = 0
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == breakerHalfOpen || cb.failures >= cb.threshold {
		cb.state = breakerOpen
		cb.openedAt = cb.now()
	}
}

// IsOpen is false while a half-open probe is pending.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == breakerOpen
}
