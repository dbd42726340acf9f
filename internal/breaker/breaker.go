// Package breaker stops calling a failing server for a cooldown period.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// DefaultThreshold is the number of consecutive failures before the circuit opens.
const DefaultThreshold = 3

// DefaultCooldown is how long the circuit stays open before a probe is allowed.
const DefaultCooldown = 30 * time.Second

// ErrOpen is returned instead of calling the server while the circuit is open.
var ErrOpen = errors.New("circuit open: server failing, retry later")

// State represents the state of a breaker.
type State int

const (
	// Closed is the normal state - requests are allowed.
	Closed State = iota
	// Open means the server is failing - requests are blocked.
	Open
	// HalfOpen means the cooldown expired - one probe request is allowed.
	HalfOpen
)

// String returns the string representation of the state.
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

// Breaker implements the circuit breaker pattern for the task server.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	cooldown     time.Duration
	failureCount int
	state        State
	openedAt     time.Time
	now          func() time.Time
}

// New creates a Breaker. Non-positive arguments select the defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     Closed,
		now:       time.Now,
	}
}

// Allow returns ErrOpen while the circuit is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
	}
	return nil
}

// RecordSuccess closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = Closed
}

// RecordFailure counts a failure. A failed half-open probe reopens at once.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.threshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = HalfOpen
	}
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
