// Package resilience provides retry and circuit breaking for calls to
// external services.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cooldown passes.
	StateOpen
	// StateHalfOpen lets probe calls through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned for calls rejected by an open breaker.
var ErrBreakerOpen = eris.New("resilience: circuit breaker open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
	// Trips decides whether an error counts as a failure. Defaults to any
	// non-nil error.
	Trips func(err error) bool
}

// Breaker stops calling a failing dependency for a cooldown period.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker. Zero config values get defaults of
// 5 failures and a 30s cooldown.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Trips == nil {
		cfg.Trips = func(err error) bool { return err != nil }
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, ErrBreakerOpen
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State returns the current state, reporting half-open once the cooldown
// of an open breaker has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.setState(StateHalfOpen)
		return true
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Trips(err) {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.cfg.Name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", s),
	)
	b.state = s
}
