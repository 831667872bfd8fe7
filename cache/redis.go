package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const tierRedis = "redis"

const (
	redisPrimaryPrefix = "kmc:"
	redisStalePrefix   = "kms:"

	redisDialTimeout = 5 * time.Second
	redisScanCount   = 1000
)

// RedisBackend is the shared cache strategy backed by a remote Redis. The
// data plane never surfaces transport or decode errors: reads degrade to
// misses and writes to no-ops, while a private [ReconnectManager] works on
// restoring the connection in the background.
type RedisBackend struct {
	recorder  Recorder
	reconnect *ReconnectManager

	mu        sync.Mutex
	cfg       Config
	client    redis.UniversalClient
	connected bool

	hits         uint64
	misses       uint64
	totalLatency time.Duration
	lookups      uint64
}

// NewRedisBackend creates an unconnected Redis backend. Connect must be
// called before the backend serves anything other than misses.
func NewRedisBackend(cfg Config, rcfg ReconnectConfig, recorder Recorder) *RedisBackend {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	b := &RedisBackend{
		cfg:      cfg.withDefaults(),
		recorder: recorder,
	}
	b.reconnect = NewReconnectManager(rcfg, b.redial)
	return b
}

// Name implements [Backend].
func (b *RedisBackend) Name() string { return string(StrategySharedRedis) }

// Connect implements [Connector]. On failure the instance is left
// unconnected and the error wraps [ErrRedisUnavailable].
func (b *RedisBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	url := b.cfg.RedisURL
	b.mu.Unlock()

	client, err := dialRedis(ctx, url)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.client = client
	b.connected = true
	b.mu.Unlock()
	return nil
}

// Disconnect implements [Connector]; safe to call redundantly.
func (b *RedisBackend) Disconnect(_ context.Context) error {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.connected = false
	b.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func dialRedis(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return client, nil
}

// redial is the reconnect callback driven by the private manager.
func (b *RedisBackend) redial(ctx context.Context) error {
	b.mu.Lock()
	url := b.cfg.RedisURL
	old := b.client
	b.mu.Unlock()

	client, err := dialRedis(ctx, url)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.client = client
	b.connected = true
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// onTransportError marks the connection suspect and kicks off background
// recovery. Concurrent failures join the same in-flight attempt.
func (b *RedisBackend) onTransportError(err error) {
	log.Print("kongmint: redis cache operation failed: ", err)
	if b.reconnect.Reconnecting() || b.reconnect.Exhausted() {
		return
	}
	go b.reconnect.Attempt(context.Background())
}

func (b *RedisBackend) snapshot() (redis.UniversalClient, Config, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client, b.cfg, b.connected
}

// Get implements [Backend]. Transport and decode failures count as misses.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	return b.fetch(ctx, redisPrimaryPrefix+key)
}

// GetStale implements [StaleCapable].
func (b *RedisBackend) GetStale(ctx context.Context, key string) ([]byte, bool) {
	return b.fetch(ctx, redisStalePrefix+key)
}

func (b *RedisBackend) fetch(ctx context.Context, redisKey string) ([]byte, bool) {
	client, _, connected := b.snapshot()
	if !connected {
		b.recorder.RecordCacheOperation(OutcomeMiss, tierRedis)
		return nil, false
	}

	start := time.Now()
	data, err := client.Get(ctx, redisKey).Bytes()
	elapsed := time.Since(start)

	hit := err == nil
	if err != nil && !errors.Is(err, redis.Nil) {
		b.onTransportError(err)
	}

	b.mu.Lock()
	if hit {
		b.hits++
	} else {
		b.misses++
	}
	b.lookups++
	b.totalLatency += elapsed
	b.mu.Unlock()

	if !hit {
		b.recorder.RecordCacheOperation(OutcomeMiss, tierRedis)
		return nil, false
	}
	b.recorder.RecordCacheOperation(OutcomeHit, tierRedis)
	return data, true
}

// Set implements [Backend]. The value is written to both the primary and
// stale namespaces so a later primary expiry does not erase recoverability.
// Unconnected instances resolve without effect.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if pollutedConsumerSecret(key, value) {
		b.recorder.RecordCachePollution(tierRedis)
		return
	}

	client, cfg, connected := b.snapshot()
	if !connected {
		return
	}
	if ttl <= 0 {
		ttl = cfg.TTL
	}

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisPrimaryPrefix+key, value, ttl)
		pipe.Set(ctx, redisStalePrefix+key, value, cfg.StaleDataTolerance)
		return nil
	})
	if err != nil {
		b.onTransportError(err)
	}
}

// SetStale implements [StaleCapable]; writes only the stale namespace.
func (b *RedisBackend) SetStale(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if pollutedConsumerSecret(key, value) {
		b.recorder.RecordCachePollution(tierRedis)
		return
	}

	client, cfg, connected := b.snapshot()
	if !connected {
		return
	}
	if ttl <= 0 {
		ttl = cfg.StaleDataTolerance
	}
	if err := client.Set(ctx, redisStalePrefix+key, value, ttl).Err(); err != nil {
		b.onTransportError(err)
	}
}

// Delete implements [Backend]; removes the primary entry only.
func (b *RedisBackend) Delete(ctx context.Context, key string) {
	client, _, connected := b.snapshot()
	if !connected {
		return
	}
	if err := client.Del(ctx, redisPrimaryPrefix+key).Err(); err != nil {
		b.onTransportError(err)
	}
}

// Clear implements [Backend]; empties the primary namespace, leaving stale
// data intact.
func (b *RedisBackend) Clear(ctx context.Context) {
	b.clearPrefix(ctx, redisPrimaryPrefix)
}

// ClearStale implements [StaleCapable].
func (b *RedisBackend) ClearStale(ctx context.Context) {
	b.clearPrefix(ctx, redisStalePrefix)
}

func (b *RedisBackend) clearPrefix(ctx context.Context, prefix string) {
	client, _, connected := b.snapshot()
	if !connected {
		return
	}

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", redisScanCount).Result()
		if err != nil {
			b.onTransportError(err)
			return
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				b.onTransportError(err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Stats implements [Backend]. When unconnected it reports zeroed stats
// without attempting I/O.
func (b *RedisBackend) Stats(ctx context.Context) Stats {
	client, _, connected := b.snapshot()
	if !connected {
		return Stats{Strategy: StrategySharedRedis, HitRate: formatHitRate(0, 0)}
	}

	primary := b.scanKeys(ctx, client, redisPrimaryPrefix)
	staleCount := len(b.scanKeys(ctx, client, redisStalePrefix))

	b.mu.Lock()
	var avg time.Duration
	if b.lookups > 0 {
		avg = b.totalLatency / time.Duration(b.lookups)
	}
	b.mu.Unlock()

	return Stats{
		Strategy:       StrategySharedRedis,
		Size:           len(primary),
		Keys:           primary,
		ActiveEntries:  len(primary),
		StaleEntries:   staleCount,
		HitRate:        formatHitRate(len(primary), len(primary)),
		AverageLatency: avg,
		RedisConnected: true,
	}
}

func (b *RedisBackend) scanKeys(ctx context.Context, client redis.UniversalClient, prefix string) []string {
	keys := make([]string, 0)
	var cursor uint64
	for {
		batch, next, err := client.Scan(ctx, cursor, prefix+"*", redisScanCount).Result()
		if err != nil {
			b.onTransportError(err)
			return keys
		}
		for _, k := range batch {
			keys = append(keys, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}

// Healthy implements [Backend]; a connected backend that answers PING.
func (b *RedisBackend) Healthy(ctx context.Context) bool {
	client, _, connected := b.snapshot()
	if !connected {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	return client.Ping(pingCtx).Err() == nil
}

// Reconfigure implements [Backend]; connection and data are preserved, only
// tunables change.
func (b *RedisBackend) Reconfigure(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg.withDefaults()
	b.mu.Unlock()
}

// ReconnectStats exposes the private reconnect manager's counters for
// observability.
func (b *RedisBackend) ReconnectStats() ReconnectStats {
	return b.reconnect.Stats()
}
