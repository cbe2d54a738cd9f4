package upstream

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen is the testing state where a limited number of requests
	// are allowed through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the circuit. Default: 5
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a test
	// request is let through. Default: 30 seconds
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests is the number of test requests allowed while
	// half-open. Default: 1
	HalfOpenMaxRequests int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastStateChange   time.Time
	halfOpenRequests  int
}

// Breaker tracks failures per host and fails fast while a host is down.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	circuits map[string]*circuit
	now      func() time.Time
	onChange func(host string, from, to CircuitState)
}

// NewBreaker creates a circuit breaker, filling zero fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// Allow returns nil when a request to host may proceed, or ErrCircuitOpen.
func (b *Breaker) Allow(host string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	switch c.state {
	case CircuitOpen:
		if b.now().Sub(c.lastStateChange) < b.cfg.RecoveryTimeout {
			return ErrCircuitOpen
		}
		// This request is the first test request.
		b.transition(host, c, CircuitHalfOpen)
		c.halfOpenRequests = 1
		return nil
	case CircuitHalfOpen:
		if c.halfOpenRequests >= b.cfg.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		c.halfOpenRequests++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count.
func (b *Breaker) RecordSuccess(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	if c.state == CircuitHalfOpen {
		b.transition(host, c, CircuitClosed)
		c.halfOpenRequests = 0
	}
	c.consecutiveErrors = 0
}

// RecordFailure counts a failed request. Errors that say nothing about the
// host's health, such as an unknown channel, do not count. In the half-open
// state they still settle the test request: an answer from the host closes
// the circuit, a canceled request frees its slot for the next one.
func (b *Breaker) RecordFailure(host string, err error) {
	if b == nil || err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(host)
	if !isTransient(err) {
		if c.state != CircuitHalfOpen {
			return
		}
		if errors.Is(err, context.Canceled) {
			if c.halfOpenRequests > 0 {
				c.halfOpenRequests--
			}
			return
		}
		b.transition(host, c, CircuitClosed)
		c.halfOpenRequests = 0
		c.consecutiveErrors = 0
		return
	}

	c.consecutiveErrors++
	switch c.state {
	case CircuitClosed:
		if c.consecutiveErrors >= b.cfg.FailureThreshold {
			b.transition(host, c, CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transition(host, c, CircuitOpen)
	}
}

// State returns the state of the circuit for host.
func (b *Breaker) State(host string) CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && b.now().Sub(c.lastStateChange) >= b.cfg.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// circuit gets or creates the circuit for host. Must be called with mu held.
func (b *Breaker) circuit(host string) *circuit {
	c, ok := b.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, lastStateChange: b.now()}
		b.circuits[host] = c
	}
	return c
}

// transition must be called with mu held.
func (b *Breaker) transition(host string, c *circuit, to CircuitState) {
	from := c.state
	c.state = to
	c.lastStateChange = b.now()
	if b.onChange != nil && from != to {
		b.onChange(host, from, to)
	}
}
