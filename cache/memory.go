package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const tierLocal = "local"

// MemoryBackend is the in-process cache strategy: a primary map with TTL
// expiry and oldest-first eviction, plus a stale map whose entries live
// 24 times longer and survive primary expiry. It has no external
// dependency and is therefore always healthy.
type MemoryBackend struct {
	mu       sync.Mutex
	cfg      Config
	primary  map[string]Entry
	stale    map[string]Entry
	recorder Recorder

	hits         uint64
	misses       uint64
	totalLatency time.Duration
	lookups      uint64
}

// NewMemoryBackend creates a memory backend with the given tunables.
func NewMemoryBackend(cfg Config, recorder Recorder) *MemoryBackend {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &MemoryBackend{
		cfg:      cfg.withDefaults(),
		primary:  make(map[string]Entry),
		stale:    make(map[string]Entry),
		recorder: recorder,
	}
}

// Name implements [Backend].
func (b *MemoryBackend) Name() string { return string(StrategyLocalMemory) }

// Get implements [Backend]. An expired entry is equivalent to a miss.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool) {
	start := time.Now()

	b.mu.Lock()
	entry, ok := b.primary[key]
	now := time.Now()
	if ok && !entry.Live(now) {
		delete(b.primary, key)
		ok = false
	}
	if ok {
		b.hits++
	} else {
		b.misses++
	}
	b.lookups++
	b.totalLatency += time.Since(start)
	b.mu.Unlock()

	if !ok {
		b.recorder.RecordCacheOperation(OutcomeMiss, tierLocal)
		return nil, false
	}
	b.recorder.RecordCacheOperation(OutcomeHit, tierLocal)
	return cloneBytes(entry.Data), true
}

// Set implements [Backend]. The value is always mirrored into the stale map
// with an extended TTL so a later primary expiry does not immediately lose
// recoverability. ttl <= 0 uses the configured default.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if pollutedConsumerSecret(key, value) {
		b.recorder.RecordCachePollution(tierLocal)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ttl <= 0 {
		ttl = b.cfg.TTL
	}
	now := time.Now()

	if _, exists := b.primary[key]; !exists && len(b.primary) >= b.cfg.MaxEntries {
		evictOldest(b.primary)
	}
	b.primary[key] = newEntry(value, now, ttl)

	if _, exists := b.stale[key]; !exists && len(b.stale) >= 2*b.cfg.MaxEntries {
		evictOldest(b.stale)
	}
	b.stale[key] = newEntry(value, now, ttl*staleTTLMultiplier)
}

// Delete implements [Backend]. The stale mirror is kept: deletion targets
// the primary namespace only, matching the shared backend's semantics.
func (b *MemoryBackend) Delete(_ context.Context, key string) {
	b.mu.Lock()
	delete(b.primary, key)
	b.mu.Unlock()
}

// Clear implements [Backend]. Stale data is left intact so recovery remains
// possible after a wholesale invalidation.
func (b *MemoryBackend) Clear(_ context.Context) {
	b.mu.Lock()
	b.primary = make(map[string]Entry)
	b.mu.Unlock()
}

// GetStale implements [StaleCapable].
func (b *MemoryBackend) GetStale(_ context.Context, key string) ([]byte, bool) {
	b.mu.Lock()
	entry, ok := b.stale[key]
	if ok && !entry.Live(time.Now()) {
		delete(b.stale, key)
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		b.recorder.RecordCacheOperation(OutcomeMiss, tierLocal)
		return nil, false
	}
	b.recorder.RecordCacheOperation(OutcomeHit, tierLocal)
	return cloneBytes(entry.Data), true
}

// SetStale implements [StaleCapable]. ttl <= 0 uses the extended default.
func (b *MemoryBackend) SetStale(_ context.Context, key string, value []byte, ttl time.Duration) {
	if pollutedConsumerSecret(key, value) {
		b.recorder.RecordCachePollution(tierLocal)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ttl <= 0 {
		ttl = b.cfg.TTL * staleTTLMultiplier
	}
	if _, exists := b.stale[key]; !exists && len(b.stale) >= 2*b.cfg.MaxEntries {
		evictOldest(b.stale)
	}
	b.stale[key] = newEntry(value, time.Now(), ttl)
}

// ClearStale implements [StaleCapable].
func (b *MemoryBackend) ClearStale(_ context.Context) {
	b.mu.Lock()
	b.stale = make(map[string]Entry)
	b.mu.Unlock()
}

// Stats implements [Backend]. Expired primary entries are purged as a side
// effect, so Size reflects only what is actually held.
func (b *MemoryBackend) Stats(_ context.Context) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for key, entry := range b.primary {
		if !entry.Live(now) {
			delete(b.primary, key)
		}
	}
	for key, entry := range b.stale {
		if !entry.Live(now) {
			delete(b.stale, key)
		}
	}

	keys := make([]string, 0, len(b.primary))
	active := 0
	for key, entry := range b.primary {
		keys = append(keys, key)
		if entry.Live(now) {
			active++
		}
	}

	var avg time.Duration
	if b.lookups > 0 {
		avg = b.totalLatency / time.Duration(b.lookups)
	}

	return Stats{
		Strategy:       StrategyLocalMemory,
		Size:           len(b.primary),
		Keys:           keys,
		ActiveEntries:  active,
		StaleEntries:   len(b.stale),
		HitRate:        formatHitRate(active, len(b.primary)),
		AverageLatency: avg,
	}
}

// Healthy implements [Backend]; the memory backend has no failure mode.
func (b *MemoryBackend) Healthy(_ context.Context) bool { return true }

// Reconfigure implements [Backend]; entries are preserved, only tunables change.
func (b *MemoryBackend) Reconfigure(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg.withDefaults()
	b.mu.Unlock()
}

func evictOldest(entries map[string]Entry) {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range entries {
		if !found || entry.CreatedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.CreatedAt
			found = true
		}
	}
	if found {
		delete(entries, oldestKey)
	}
}

func formatHitRate(active, size int) string {
	if size == 0 {
		return "0.00"
	}
	return strconv.FormatFloat(float64(active)/float64(size)*100, 'f', 2, 64)
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
