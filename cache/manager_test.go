package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestManagerFallsBackToLocalMemory(t *testing.T) {
	m := NewManager(Config{
		HighAvailability: true,
		RedisURL:         "redis://127.0.0.1:1",
		TTL:              time.Minute,
	}, ReconnectConfig{}, nil)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 0)
	if got := m.Strategy(); got != StrategyLocalMemory {
		t.Fatalf("expected fallback to local-memory, got %q", got)
	}
	data, ok := m.Get(ctx, "k")
	if !ok || string(data) != "v" {
		t.Fatalf("expected round-trip on the fallback backend, got %q ok=%v", data, ok)
	}
}

func TestManagerSelectsRedisWhenAvailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	m := NewManager(Config{
		HighAvailability: true,
		RedisURL:         "redis://" + mr.Addr(),
		TTL:              time.Minute,
	}, ReconnectConfig{}, nil)
	ctx := context.Background()
	defer m.Shutdown(ctx)

	m.Set(ctx, "k", []byte("v"), 0)
	if got := m.Strategy(); got != StrategySharedRedis {
		t.Fatalf("expected shared-redis, got %q", got)
	}
	if data, ok := m.Get(ctx, "k"); !ok || string(data) != "v" {
		t.Fatalf("expected round-trip, got %q ok=%v", data, ok)
	}
}

func TestManagerStrategyEmptyBeforeInitAndAfterShutdown(t *testing.T) {
	m := NewManager(Config{}, ReconnectConfig{}, nil)
	ctx := context.Background()

	if got := m.Strategy(); got != "" {
		t.Fatalf("expected no strategy before init, got %q", got)
	}

	m.Set(ctx, "k", []byte("v"), 0)
	if got := m.Strategy(); got != StrategyLocalMemory {
		t.Fatalf("expected local-memory after first operation, got %q", got)
	}

	m.Shutdown(ctx)
	if got := m.Strategy(); got != "" {
		t.Fatalf("expected no strategy after shutdown, got %q", got)
	}
}

func TestManagerShutdownIdempotentAndBeforeInit(t *testing.T) {
	m := NewManager(Config{}, ReconnectConfig{}, nil)
	ctx := context.Background()

	m.Shutdown(ctx)
	m.Set(ctx, "k", []byte("v"), 0)
	m.Shutdown(ctx)
	m.Shutdown(ctx)

	// The manager reinitializes on the next operation.
	m.Set(ctx, "k2", []byte("v2"), 0)
	if _, ok := m.Get(ctx, "k2"); !ok {
		t.Fatal("expected manager to reinitialize after shutdown")
	}
}

func TestManagerReconfigureSameStrategyPreservesData(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 0)
	m.Reconfigure(ctx, Config{TTL: 2 * time.Minute, MaxEntries: 50})

	if got := m.Strategy(); got != StrategyLocalMemory {
		t.Fatalf("unexpected strategy after reconfigure: %q", got)
	}
	if data, ok := m.Get(ctx, "k"); !ok || string(data) != "v" {
		t.Fatalf("same-strategy reconfigure must preserve data, got %q ok=%v", data, ok)
	}
}

func TestManagerReconfigureChangedStrategyClearsData(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()

	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()
	defer m.Shutdown(ctx)

	m.Set(ctx, "k", []byte("v"), 0)
	m.Reconfigure(ctx, Config{
		HighAvailability: true,
		RedisURL:         "redis://" + mr.Addr(),
		TTL:              time.Minute,
	})

	if got := m.Strategy(); got != StrategySharedRedis {
		t.Fatalf("expected shared-redis after reconfigure, got %q", got)
	}
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("changed-strategy reconfigure must drop previous data")
	}
	m.Set(ctx, "k2", []byte("v2"), 0)
	if data, ok := m.Get(ctx, "k2"); !ok || string(data) != "v2" {
		t.Fatalf("expected round-trip on new backend, got %q ok=%v", data, ok)
	}
}

func TestManagerConcurrentFirstUseSingleBackend(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set(ctx, "k", []byte("v"), 0)
			m.Get(ctx, "k")
		}()
	}
	wg.Wait()

	if got := m.Strategy(); got != StrategyLocalMemory {
		t.Fatalf("unexpected strategy after concurrent init: %q", got)
	}
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("expected key present after concurrent writes")
	}
}

func TestManagerStaleThroughBackend(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expected primary expiry")
	}
	if data, ok := m.GetStale(ctx, "k"); !ok || string(data) != "v" {
		t.Fatalf("expected stale value, got %q ok=%v", data, ok)
	}
}

type testUserRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestManagerTypedRoundTrip(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()

	SetTyped(ctx, m, "rec", testUserRecord{Name: "alice", Count: 3}, 0)
	got, ok := GetTyped[testUserRecord](ctx, m, "rec")
	if !ok {
		t.Fatal("expected typed hit")
	}
	if got.Name != "alice" || got.Count != 3 {
		t.Fatalf("unexpected decoded record: %+v", got)
	}
}

func TestManagerTypedDecodeFailureIsMiss(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute}, ReconnectConfig{}, nil)
	ctx := context.Background()

	m.Set(ctx, "rec", []byte("{not json"), 0)
	if _, ok := GetTyped[testUserRecord](ctx, m, "rec"); ok {
		t.Fatal("malformed payload must read as a miss")
	}
}
