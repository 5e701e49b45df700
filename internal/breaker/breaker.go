// Package breaker implements a per-provider circuit breaker, ported from
// the gateway's original three-state design.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// circuit tracks one provider's failure/success counters and state.
type circuit struct {
	state       State
	failures    int
	successes   int
	nextAttempt time.Time
}

// Breaker is a registry of per-provider circuits, all sharing the same
// thresholds and cooldown.
type Breaker struct {
	mu               sync.Mutex
	circuits         map[string]*circuit
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	onStateChange func(provider string, state State)
	onFailure     func(provider string)
}

// Option configures optional instrumentation hooks.
type Option func(*Breaker)

// WithMetricsHooks wires state-change/failure callbacks so the metrics
// package can observe breaker behavior without this package depending on
// it.
func WithMetricsHooks(onStateChange func(provider string, state State), onFailure func(provider string)) Option {
	return func(b *Breaker) {
		b.onStateChange = onStateChange
		b.onFailure = onFailure
	}
}

// New builds a Breaker. failureThreshold consecutive failures (in Closed)
// open the circuit; successThreshold consecutive successes (in HalfOpen)
// close it; cooldown is how long Open waits before trying HalfOpen.
func New(failureThreshold, successThreshold int, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		circuits:         make(map[string]*circuit),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) circuitFor(provider string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{state: Closed}
		b.circuits[provider] = c
	}
	return c
}

// CanAttempt reports whether a call to provider should be tried. Closed
// and HalfOpen both allow attempts; Open allows one only once the cooldown
// has elapsed, at which point it transitions to HalfOpen first.
func (b *Breaker) CanAttempt(provider string) bool {
	c := b.circuitFor(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch c.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Now().After(c.nextAttempt) {
			c.state = HalfOpen
			c.successes = 0
			b.notifyState(provider, HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful call. In Closed it resets the
// failure counter; in HalfOpen it counts toward successThreshold and
// closes the circuit (resetting both counters) once reached; in Open it's
// a no-op (shouldn't happen since CanAttempt gates calls).
func (b *Breaker) RecordSuccess(provider string) {
	c := b.circuitFor(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch c.state {
	case Closed:
		c.failures = 0
	case HalfOpen:
		c.successes++
		if c.successes >= b.successThreshold {
			c.state = Closed
			c.failures = 0
			c.successes = 0
			b.notifyState(provider, Closed)
		}
	case Open:
		// No-op.
	}
}

// RecordFailure registers a failed call. In Closed it counts toward
// failureThreshold and opens the circuit once reached; in HalfOpen a
// single failure reopens the circuit immediately WITHOUT resetting the
// failure counter accumulated before the half-open attempt; the counter is
// only zeroed by a success in Closed or when the circuit closes. Open
// leaves the state unchanged. The failure hook fires in every state.
func (b *Breaker) RecordFailure(provider string) {
	c := b.circuitFor(provider)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.onFailure != nil {
		b.onFailure(provider)
	}

	switch c.state {
	case Closed:
		c.failures++
		if c.failures >= b.failureThreshold {
			c.state = Open
			c.nextAttempt = time.Now().Add(b.cooldown)
			b.notifyState(provider, Open)
		}
	case HalfOpen:
		c.state = Open
		c.nextAttempt = time.Now().Add(b.cooldown)
		b.notifyState(provider, Open)
	case Open:
		// No-op.
	}
}

// State returns the current state of provider's circuit, for metrics/debug
// surfaces.
func (b *Breaker) State(provider string) State {
	c := b.circuitFor(provider)
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.state
}

func (b *Breaker) notifyState(provider string, state State) {
	if b.onStateChange != nil {
		b.onStateChange(provider, state)
	}
}
