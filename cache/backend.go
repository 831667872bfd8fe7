package cache

import (
	"context"
	"errors"
	"time"
)

// Strategy identifies the selected cache backend kind.
type Strategy string

const (
	// StrategyLocalMemory is the in-process map-backed strategy.
	StrategyLocalMemory Strategy = "local-memory"
	// StrategySharedRedis is the Redis-backed shared strategy.
	StrategySharedRedis Strategy = "shared-redis"
)

// ErrRedisUnavailable is an exported constant or variable used by the caching subsystem.
var ErrRedisUnavailable = errors.New("cache redis unavailable")

// ErrNotConnected is returned by lifecycle calls on a backend whose
// connection has not been established.
var ErrNotConnected = errors.New("cache backend not connected")

// Config carries the tunables shared by every backend. HighAvailability is
// a request for the shared-redis strategy, not a guarantee: the Manager may
// fall back to local memory when Redis cannot be reached.
type Config struct {
	HighAvailability   bool
	RedisURL           string
	TTL                time.Duration
	MaxEntries         int
	StaleDataTolerance time.Duration
}

const (
	defaultTTL                = 5 * time.Minute
	defaultMaxEntries         = 1000
	defaultStaleDataTolerance = 30 * time.Minute

	// staleTTLMultiplier extends the local stale namespace far beyond the
	// primary TTL so a primary expiry does not lose recoverability.
	staleTTLMultiplier = 24
)

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	if c.StaleDataTolerance <= 0 {
		c.StaleDataTolerance = defaultStaleDataTolerance
	}
	return c
}

// Stats is a point-in-time view of a backend's contents and effectiveness.
// HitRate is formatted as a percentage string and is "0.00" for an empty
// backend.
type Stats struct {
	Strategy       Strategy
	Size           int
	Keys           []string
	ActiveEntries  int
	StaleEntries   int
	HitRate        string
	AverageLatency time.Duration
	RedisConnected bool
}

// Backend is the minimal contract every cache backend satisfies. Data-plane
// methods never fail for connectivity reasons: reads degrade to misses and
// writes to no-ops.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Stats(ctx context.Context) Stats
	Healthy(ctx context.Context) bool
	Reconfigure(cfg Config)
}

// StaleCapable is the capability interface for backends that maintain a
// secondary longer-TTL namespace of last-known-good values.
type StaleCapable interface {
	GetStale(ctx context.Context, key string) ([]byte, bool)
	SetStale(ctx context.Context, key string, value []byte, ttl time.Duration)
	ClearStale(ctx context.Context)
}

// Connector is the capability interface for backends with an external
// connection lifecycle.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Recorder receives fire-and-forget cache observability events. Implementations
// must never block or panic into the caller.
type Recorder interface {
	RecordCacheOperation(outcome string, tier string)
	RecordCachePollution(tier string)
	RecordCacheFallback(from Strategy, to Strategy)
}

// Hit/miss outcome labels passed to [Recorder.RecordCacheOperation].
const (
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

// NopRecorder is a Recorder that discards every event.
type NopRecorder struct{}

// RecordCacheOperation implements [Recorder].
func (NopRecorder) RecordCacheOperation(string, string) {}

// RecordCachePollution implements [Recorder].
func (NopRecorder) RecordCachePollution(string) {}

// RecordCacheFallback implements [Recorder].
func (NopRecorder) RecordCacheFallback(Strategy, Strategy) {}
