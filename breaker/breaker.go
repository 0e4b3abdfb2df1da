// Package breaker provides a minimal, thread-safe circuit breaker used to
// stop hammering an upstream feed API that keeps failing.
//
// States:
//   - Closed: requests flow normally; failures are counted.
//   - Open: requests are blocked; after OpenTimeout the breaker transitions to HalfOpen.
//   - HalfOpen: a limited number of probe requests are allowed through;
//     if all succeed the breaker closes, any failure reopens it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do when the breaker rejects a call.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int

	// IsFailure decides which errors count against the breaker. Nil counts
	// every error. Errors it rejects are recorded as successes: the upstream
	// answered, even if the answer was unwelcome.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(from, to State)
}

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time // for testing; defaults to time.Now
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

// Allow reports whether a request is allowed through. It returns true when the
// breaker is Closed, or HalfOpen with remaining probe slots. It returns false
// when the breaker is Open (and the timeout has not yet elapsed).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	from := b.state
	b.checkOpenTimeout()
	to := b.state

	var ok bool
	switch b.state {
	case Closed:
		ok = true
	case HalfOpen:
		ok = b.successes < b.cfg.HalfOpenMaxSuccess
	default: // Open
		ok = false
	}
	b.mu.Unlock()
	b.notify(from, to)
	return ok
}

// Do runs fn if the breaker allows it and records the outcome. A rejected
// call returns ErrOpen without running fn.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, ErrOpen
	}
	v, err := fn()
	if err != nil && (b.cfg.IsFailure == nil || b.cfg.IsFailure(err)) {
		b.OnFailure()
		return zero, err
	}
	b.OnSuccess()
	return v, err
}

// OnSuccess records a successful request.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	from := b.state
	b.onSuccessLocked()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed request.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	from := b.state
	b.onFailureLocked()
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) onFailureLocked() {
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

func (b *Breaker) now() time.Time {
	if b.nowFunc != nil {
		return b.nowFunc()
	}
	return time.Now()
}
