// Package rate throttles outbound calls to liquidity providers and venues.
package rate

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config defines the token bucket for one key.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter is a token bucket.
type Limiter struct {
	mu     sync.Mutex
	clk    clock.Clock
	tokens float64
	last   time.Time
	rate   float64
	burst  float64
}

// New creates a full bucket on the wall clock.
func New(cfg Config) *Limiter {
	return NewWithClock(cfg, clock.New())
}

func NewWithClock(cfg Config, clk clock.Clock) *Limiter {
	burst := float64(cfg.Burst)
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		clk:    clk,
		tokens: burst,
		last:   clk.Now(),
		rate:   cfg.RequestsPerSecond,
		burst:  burst,
	}
}

// reserve takes a token if one is available, otherwise returns how long
// until the next one.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	if l.rate <= 0 {
		return time.Second, false
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second)), false
}

// Allow reports whether a request may go now, consuming a token if so.
func (l *Limiter) Allow() bool {
	_, ok := l.reserve()
	return ok
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}
		timer := l.clk.Timer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Manager hands out one limiter per venue.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	defaults Config
	clk      clock.Clock
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
		clk:      clock.New(),
	}
}

func (m *Manager) GetLimiter(key string) *Limiter {
	m.mu.RLock()
	lim, ok := m.limiters[key]
	m.mu.RUnlock()
	if ok {
		return lim
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim = NewWithClock(m.defaults, m.clk)
	m.limiters[key] = lim
	return lim
}

// Wait ensures rate limit compliance for key.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}
