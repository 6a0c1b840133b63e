package run

import (
	"sync"
	"time"

	"github.com/forgeworks/blockforge/block"
)

// BreakerState is the circuit breaker state for one block identity.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes the per-block circuit breakers.
type BreakerConfig struct {
	// FailureThreshold opens the circuit after this many consecutive
	// failures within the sliding window.
	FailureThreshold int
	// Window bounds how far back consecutive failures count; a quiet
	// period longer than the window resets the streak.
	Window time.Duration
	// CoolDown is how long an open circuit short-circuits calls before
	// probing again.
	CoolDown time.Duration
	// HalfOpenMaxCalls bounds probe calls while half-open.
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig mirrors the guard defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		CoolDown:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker is the circuit for one block identity. Shared across concurrent
// requests, so every transition happens under the lock.
type Breaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state           BreakerState
	failures        int
	lastFailureAt   time.Time
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenPassed  int
}

func newBreaker(cfg BreakerConfig, now func() time.Time) *Breaker {
	return &Breaker{cfg: cfg, now: now, state: BreakerClosed}
}

// Allow reports whether a call may proceed, transitioning open circuits to
// half-open once the cool-down elapses.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
			b.state = BreakerHalfOpen
			b.halfOpenCalls = 0
			b.halfOpenPassed = 0
			b.halfOpenCalls++
			return true
		}
		return false
	default: // half-open
		if b.halfOpenCalls < b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	}
}

// RecordSuccess resets the failure streak; enough half-open successes
// close the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.halfOpenPassed++
		if b.halfOpenPassed >= b.cfg.HalfOpenMaxCalls {
			b.state = BreakerClosed
		}
	}
}

// RecordFailure advances the streak and opens the circuit at the
// threshold. A half-open failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.lastFailureAt.IsZero() && now.Sub(b.lastFailureAt) > b.cfg.Window {
		b.failures = 0
	}
	b.failures++
	b.lastFailureAt = now

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		return
	}
	if b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

// State returns the current state (transitioning open to half-open if the
// cool-down has elapsed is left to Allow).
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSet holds one breaker per block identity, shared across requests.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	now      func() time.Time
	breakers map[block.Hash]*Breaker
}

// NewBreakerSet creates the shared breaker map.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[block.Hash]*Breaker),
	}
}

// For returns the breaker for a block identity, creating it on first use.
func (s *BreakerSet) For(hash block.Hash) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[hash]
	if !ok {
		b = newBreaker(s.cfg, s.now)
		s.breakers[hash] = b
	}
	return b
}
