package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

type managerState int

const (
	managerIdle managerState = iota
	managerInitializing
	managerActive
)

// Manager selects a backend strategy from configuration, initializes it
// lazily and exactly once, and exposes the cache contract uniformly
// regardless of which backend is active. When the shared-redis strategy
// cannot be brought up the manager falls back to local memory transparently;
// callers only observe the actual strategy through [Manager.Strategy].
//
// A Manager owns its backend exclusively. The backend is swapped wholesale
// on reconfigure and released on shutdown, never shared.
type Manager struct {
	recorder Recorder

	mu       sync.Mutex
	cfg      Config
	rcfg     ReconnectConfig
	state    managerState
	backend  Backend
	initDone chan struct{}
}

// NewManager creates an uninitialized manager. The backend is constructed on
// the first data operation, or eagerly via [Manager.Connect].
func NewManager(cfg Config, rcfg ReconnectConfig, recorder Recorder) *Manager {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Manager{
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		rcfg:     rcfg.withDefaults(),
	}
}

func requestedStrategy(cfg Config) Strategy {
	if cfg.HighAvailability {
		return StrategySharedRedis
	}
	return StrategyLocalMemory
}

// backendFor returns the active backend, initializing it if needed.
// Concurrent first-callers share one in-flight initialization; only the
// winner constructs a backend. Returns nil only when ctx is done first.
func (m *Manager) backendFor(ctx context.Context) Backend {
	for {
		m.mu.Lock()
		switch m.state {
		case managerActive:
			backend := m.backend
			m.mu.Unlock()
			return backend

		case managerInitializing:
			done := m.initDone
			m.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil
			}

		case managerIdle:
			m.state = managerInitializing
			m.initDone = make(chan struct{})
			cfg, rcfg := m.cfg, m.rcfg
			m.mu.Unlock()

			backend := m.initialize(ctx, cfg, rcfg)

			m.mu.Lock()
			m.backend = backend
			m.state = managerActive
			close(m.initDone)
			m.mu.Unlock()
			return backend
		}
	}
}

// initialize constructs the backend for the requested strategy. A failed
// shared-redis bring-up falls back to local memory; the failure is logged
// and recorded but never surfaced.
func (m *Manager) initialize(ctx context.Context, cfg Config, rcfg ReconnectConfig) Backend {
	if requestedStrategy(cfg) == StrategySharedRedis {
		backend := NewRedisBackend(cfg, rcfg, m.recorder)
		if err := backend.Connect(ctx); err == nil {
			return backend
		} else {
			log.Print("kongmint: shared-redis cache unavailable, falling back to local memory: ", err)
			m.recorder.RecordCacheFallback(StrategySharedRedis, StrategyLocalMemory)
		}
	}
	return NewMemoryBackend(cfg, m.recorder)
}

// Connect eagerly initializes the backend. It never fails: a shared-redis
// bring-up failure is absorbed by the local-memory fallback.
func (m *Manager) Connect(ctx context.Context) error {
	m.backendFor(ctx)
	return nil
}

// Get returns the cached payload for key, or a miss.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	backend := m.backendFor(ctx)
	if backend == nil {
		return nil, false
	}
	return backend.Get(ctx, key)
}

// Set caches the payload under key. ttl <= 0 uses the configured default.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if backend := m.backendFor(ctx); backend != nil {
		backend.Set(ctx, key, value, ttl)
	}
}

// Delete removes key from the primary namespace.
func (m *Manager) Delete(ctx context.Context, key string) {
	if backend := m.backendFor(ctx); backend != nil {
		backend.Delete(ctx, key)
	}
}

// Clear empties the primary namespace, leaving stale data intact.
func (m *Manager) Clear(ctx context.Context) {
	if backend := m.backendFor(ctx); backend != nil {
		backend.Clear(ctx)
	}
}

// GetStale returns the last-known-good payload for key from the stale
// namespace, or a miss on backends without stale support.
func (m *Manager) GetStale(ctx context.Context, key string) ([]byte, bool) {
	backend := m.backendFor(ctx)
	if backend == nil {
		return nil, false
	}
	if stale, ok := backend.(StaleCapable); ok {
		return stale.GetStale(ctx, key)
	}
	return nil, false
}

// Stats returns the active backend's statistics.
func (m *Manager) Stats(ctx context.Context) Stats {
	backend := m.backendFor(ctx)
	if backend == nil {
		return Stats{HitRate: formatHitRate(0, 0)}
	}
	return backend.Stats(ctx)
}

// Healthy reports the active backend's health; initialization failures
// surface only here, as false.
func (m *Manager) Healthy(ctx context.Context) bool {
	backend := m.backendFor(ctx)
	return backend != nil && backend.Healthy(ctx)
}

// Strategy reports the actual active strategy, or "" before initialization
// and after shutdown. After a redis fallback this reports local-memory even
// though shared-redis was requested.
func (m *Manager) Strategy() Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != managerActive || m.backend == nil {
		return ""
	}
	return Strategy(m.backend.Name())
}

// BackendName reports the active backend's name, or "" when none is active.
func (m *Manager) BackendName() string {
	return string(m.Strategy())
}

// Reconfigure applies a new configuration. An unchanged requested strategy
// keeps the existing backend and its data, updating only tunables. A changed
// strategy shuts the current backend down, dropping its data, and
// reinitializes under the same fallback rule as first use.
func (m *Manager) Reconfigure(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	m.waitIdle(ctx)

	m.mu.Lock()
	previous := requestedStrategy(m.cfg)
	m.cfg = cfg

	if m.state == managerActive && previous == requestedStrategy(cfg) {
		backend := m.backend
		m.mu.Unlock()
		if backend != nil {
			backend.Reconfigure(cfg)
		}
		return
	}

	backend := m.backend
	m.backend = nil
	m.state = managerIdle
	m.initDone = nil
	m.mu.Unlock()

	m.release(ctx, backend)
	m.backendFor(ctx)
}

// Shutdown disconnects and releases the backend. Safe to call repeatedly
// and safe when the manager was never initialized.
func (m *Manager) Shutdown(ctx context.Context) {
	m.waitIdle(ctx)

	m.mu.Lock()
	backend := m.backend
	m.backend = nil
	m.state = managerIdle
	m.initDone = nil
	m.mu.Unlock()

	m.release(ctx, backend)
}

// waitIdle lets any in-flight initialization finish so its backend is not
// leaked by a concurrent reconfigure or shutdown.
func (m *Manager) waitIdle(ctx context.Context) {
	for {
		m.mu.Lock()
		if m.state != managerInitializing {
			m.mu.Unlock()
			return
		}
		done := m.initDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) release(ctx context.Context, backend Backend) {
	if backend == nil {
		return
	}
	if conn, ok := backend.(Connector); ok {
		if err := conn.Disconnect(ctx); err != nil {
			log.Print("kongmint: cache backend disconnect failed: ", err)
		}
	}
}
