package utils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without attempting the call while the breaker
// is cooling down after repeated gateway failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

// CircuitBreaker guards outbound gateway calls. It trips after a run of
// consecutive failures, refuses calls for a cooldown period, then lets a
// limited number of probes through before fully closing again.
type CircuitBreaker struct {
	name          string
	maxFailures   uint32
	cooldown      time.Duration
	halfOpenLimit uint32

	mutex        sync.Mutex
	state        State
	failures     uint32
	probes       uint32
	probeSuccess uint32
	openedAt     time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:          name,
		maxFailures:   5,
		cooldown:      30 * time.Second,
		halfOpenLimit: 3,
		state:         StateClosed,
	}
}

// Execute runs req unless the breaker refuses. A cancelled context counts as
// the caller's failure, not the gateway's, and does not feed the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cb.allow(); err != nil {
		return nil, err
	}

	result, err := req()
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	cb.record(err == nil)
	return result, err
}

// State reports the breaker's current state, advancing open -> half-open when
// the cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.advance(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.advance(time.Now())

	switch cb.state {
	case StateOpen:
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenLimit {
			return fmt.Errorf("%w: %s probing", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip(time.Now())
		}

	case StateHalfOpen:
		if !success {
			cb.trip(time.Now())
			return
		}
		cb.probeSuccess++
		if cb.probeSuccess >= cb.halfOpenLimit {
			cb.state = StateClosed
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) advance(now time.Time) {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeSuccess = 0
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = StateOpen
	cb.openedAt = now
	cb.failures = 0
	cb.probes = 0
	cb.probeSuccess = 0
}
