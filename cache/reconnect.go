package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrReconnectExhausted is an exported constant or variable used by the caching subsystem.
var ErrReconnectExhausted = errors.New("cache reconnect attempts exhausted")

// ReconnectConfig carries the backoff tunables for a [ReconnectManager].
type ReconnectConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Cooldown    time.Duration
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	return c
}

// ReconnectResult is the outcome of one [ReconnectManager.Attempt] call.
// Concurrent callers that joined an in-flight attempt all receive the same
// result.
type ReconnectResult struct {
	Success  bool
	Err      error
	Attempts int
	Duration time.Duration
}

// ReconnectStats is a point-in-time view of a manager's counters.
type ReconnectStats struct {
	Attempts          int
	Successes         uint64
	Failures          uint64
	LastAttempt       time.Time
	Reconnecting      bool
	Exhausted         bool
	CooldownRemaining time.Duration
}

type reconnectFlight struct {
	done chan struct{}
	res  ReconnectResult
}

// ReconnectManager coordinates recovery of a broken external connection.
// It is backend-agnostic: the reconnect callback is supplied at construction
// and the manager only decides when (and whether) to invoke it. At most one
// attempt is in flight per manager; concurrent callers share its result.
type ReconnectManager struct {
	cfg       ReconnectConfig
	reconnect func(ctx context.Context) error

	mu          sync.Mutex
	attempts    int
	lastAttempt time.Time
	inflight    *reconnectFlight
	successes   uint64
	failures    uint64
}

// NewReconnectManager creates a manager that drives the given callback.
func NewReconnectManager(cfg ReconnectConfig, reconnect func(ctx context.Context) error) *ReconnectManager {
	return &ReconnectManager{
		cfg:       cfg.withDefaults(),
		reconnect: reconnect,
	}
}

// Attempt runs one reconnection cycle, or joins the cycle already in flight.
// When the attempt ceiling has been reached and the cooldown has not elapsed
// the callback is never invoked and the result carries
// [ErrReconnectExhausted] with the remaining cooldown.
func (m *ReconnectManager) Attempt(ctx context.Context) ReconnectResult {
	m.mu.Lock()

	if flight := m.inflight; flight != nil {
		m.mu.Unlock()
		select {
		case <-flight.done:
			return flight.res
		case <-ctx.Done():
			return ReconnectResult{Err: ctx.Err()}
		}
	}

	now := time.Now()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) >= m.cfg.Cooldown {
		m.attempts = 0
	}
	if m.attempts >= m.cfg.MaxAttempts {
		remaining := m.cfg.Cooldown - now.Sub(m.lastAttempt)
		attempts := m.attempts
		m.mu.Unlock()
		return ReconnectResult{
			Err:      fmt.Errorf("%w: retry allowed in %s", ErrReconnectExhausted, remaining.Round(time.Millisecond)),
			Attempts: attempts,
		}
	}

	m.attempts++
	m.lastAttempt = now
	attempt := m.attempts
	flight := &reconnectFlight{done: make(chan struct{})}
	m.inflight = flight
	m.mu.Unlock()

	flight.res = m.run(ctx, attempt)

	m.mu.Lock()
	if flight.res.Success {
		m.attempts = 0
		m.successes++
	} else {
		m.failures++
	}
	m.inflight = nil
	m.mu.Unlock()
	close(flight.done)

	return flight.res
}

func (m *ReconnectManager) run(ctx context.Context, attempt int) ReconnectResult {
	start := time.Now()

	if delay := m.delay(attempt); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ReconnectResult{Err: ctx.Err(), Attempts: attempt, Duration: time.Since(start)}
		}
	}

	if err := m.reconnect(ctx); err != nil {
		log.Print("kongmint: cache reconnect attempt ", attempt, " failed: ", err)
		return ReconnectResult{Err: err, Attempts: attempt, Duration: time.Since(start)}
	}
	return ReconnectResult{Success: true, Attempts: attempt, Duration: time.Since(start)}
}

// delay computes the backoff before the given attempt within a cycle: the
// first attempt runs immediately, the second waits BaseDelay, and each
// further attempt doubles, capped at MaxDelay.
func (m *ReconnectManager) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := m.cfg.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.MaxDelay {
			return m.cfg.MaxDelay
		}
	}
	if d > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return d
}

// Reconnecting reports whether an attempt is currently in flight.
func (m *ReconnectManager) Reconnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight != nil
}

// Exhausted reports whether the attempt ceiling has been reached and the
// cooldown has not yet allowed a fresh cycle.
func (m *ReconnectManager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhaustedLocked(time.Now())
}

func (m *ReconnectManager) exhaustedLocked(now time.Time) bool {
	if m.attempts < m.cfg.MaxAttempts {
		return false
	}
	return m.lastAttempt.IsZero() || now.Sub(m.lastAttempt) < m.cfg.Cooldown
}

// CooldownRemaining reports how long until an exhausted manager may attempt
// again; zero when not exhausted.
func (m *ReconnectManager) CooldownRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if !m.exhaustedLocked(now) {
		return 0
	}
	remaining := m.cfg.Cooldown - now.Sub(m.lastAttempt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats returns the manager's counters.
func (m *ReconnectManager) Stats() ReconnectStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	stats := ReconnectStats{
		Attempts:     m.attempts,
		Successes:    m.successes,
		Failures:     m.failures,
		LastAttempt:  m.lastAttempt,
		Reconnecting: m.inflight != nil,
		Exhausted:    m.exhaustedLocked(now),
	}
	if stats.Exhausted {
		if remaining := m.cfg.Cooldown - now.Sub(m.lastAttempt); remaining > 0 {
			stats.CooldownRemaining = remaining
		}
	}
	return stats
}

// Reset hard-resets the attempt counter, for manual intervention. An
// in-flight attempt is unaffected.
func (m *ReconnectManager) Reset() {
	m.mu.Lock()
	m.attempts = 0
	m.lastAttempt = time.Time{}
	m.mu.Unlock()
}
