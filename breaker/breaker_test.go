package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("admin api unreachable")

func failing(context.Context) (any, error) { return nil, errUpstream }

func succeeding(value any) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return value, nil }
}

func testConfig() Config {
	return Config{
		Enabled:                  true,
		Timeout:                  time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             200 * time.Millisecond,
		RollingCountTimeout:      10 * time.Second,
		RollingCountBuckets:      10,
		VolumeThreshold:          3,
		Fallback:                 PolicyDeny,
	}
}

func TestBreakerTripAndRecovery(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := r.Do(ctx, "getConsumerSecret", failing); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	if got := r.State("getConsumerSecret"); got != "open" {
		t.Fatalf("expected open after consecutive failures, got %q", got)
	}

	if _, err := r.Do(ctx, "getConsumerSecret", succeeding("v")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker must reject without invoking fn, got %v", err)
	}

	time.Sleep(250 * time.Millisecond)
	value, err := r.Do(ctx, "getConsumerSecret", succeeding("v"))
	if err != nil {
		t.Fatalf("half-open probe should pass through: %v", err)
	}
	if value != "v" {
		t.Fatalf("unexpected probe result: %v", value)
	}
	if got := r.State("getConsumerSecret"); got != "closed" {
		t.Fatalf("expected closed after successful probe, got %q", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r.Do(ctx, "op", failing)
	}
	if got := r.State("op"); got != "open" {
		t.Fatalf("expected open, got %q", got)
	}

	time.Sleep(250 * time.Millisecond)
	if _, err := r.Do(ctx, "op", failing); !errors.Is(err, errUpstream) {
		t.Fatalf("half-open probe should invoke fn, got %v", err)
	}
	if got := r.State("op"); got != "open" {
		t.Fatalf("failed probe must reopen, got %q", got)
	}
}

func TestBreakerBelowVolumeThresholdStaysClosed(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r.Do(ctx, "op", failing)
	}
	if got := r.State("op"); got != "closed" {
		t.Fatalf("two failures are below the volume threshold, got %q", got)
	}
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	r := NewRegistry(cfg, time.Hour, nil)
	ctx := context.Background()

	slow := func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Do(ctx, "slow", slow); !errors.Is(err, ErrOperationTimeout) {
			t.Fatalf("call %d: expected timeout error, got %v", i+1, err)
		}
	}
	if got := r.State("slow"); got != "open" {
		t.Fatalf("timeouts must trip the breaker, got %q", got)
	}

	status := r.Status()
	if len(status) != 1 {
		t.Fatalf("expected one operation, got %d", len(status))
	}
	if status[0].Stats.Timeouts != 3 || status[0].Stats.Failures != 3 {
		t.Fatalf("timeouts must be tracked separately and as failures: %+v", status[0].Stats)
	}
}

func TestBreakerStaleCacheFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = PolicyStaleCache
	r := NewRegistry(cfg, time.Hour, nil)
	ctx := context.Background()

	if _, err := r.DoConsumer(ctx, "getConsumerSecret", "C1", succeeding("secret-c1")); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.DoConsumer(ctx, "getConsumerSecret", "C1", failing)
	}
	if got := r.State("getConsumerSecret"); got != "open" {
		t.Fatalf("expected open, got %q", got)
	}

	value, err := r.DoConsumer(ctx, "getConsumerSecret", "C1", failing)
	if err != nil {
		t.Fatalf("stale fallback should serve the cached value: %v", err)
	}
	if value != "secret-c1" {
		t.Fatalf("unexpected fallback value: %v", value)
	}

	if _, err := r.DoConsumer(ctx, "getConsumerSecret", "C2", failing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("unseen consumer must read as absent, got %v", err)
	}
}

func TestBreakerStaleFallbackRespectsTolerance(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = PolicyStaleCache
	r := NewRegistry(cfg, 30*time.Millisecond, nil)
	ctx := context.Background()

	r.DoConsumer(ctx, "op", "C1", succeeding("v"))
	for i := 0; i < 5; i++ {
		r.DoConsumer(ctx, "op", "C1", failing)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := r.DoConsumer(ctx, "op", "C1", failing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("stale value past tolerance must read as absent, got %v", err)
	}
}

func TestBreakerPerOperationOverrides(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)
	ctx := context.Background()

	long := testConfig()
	long.Timeout = 500 * time.Millisecond
	if err := r.Configure("healthCheck", long); err != nil {
		t.Fatalf("configure: %v", err)
	}

	slowish := func(ctx context.Context) (any, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	short := testConfig()
	short.Timeout = 20 * time.Millisecond
	if err := r.Configure("getConsumerSecret", short); err != nil {
		t.Fatalf("configure: %v", err)
	}

	if _, err := r.Do(ctx, "healthCheck", slowish); err != nil {
		t.Fatalf("long-timeout operation should pass: %v", err)
	}
	if _, err := r.Do(ctx, "getConsumerSecret", slowish); !errors.Is(err, ErrOperationTimeout) {
		t.Fatalf("short-timeout operation should time out, got %v", err)
	}
}

func TestBreakerConfigureValidates(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)

	bad := testConfig()
	bad.ErrorThresholdPercentage = 250
	if err := r.Configure("op", bad); err == nil {
		t.Fatal("expected validation error for out-of-range threshold")
	}
}

func TestBreakerDisabledPassesThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	r := NewRegistry(cfg, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		r.Do(ctx, "op", failing)
	}
	if _, err := r.Do(ctx, "op", succeeding("v")); err != nil {
		t.Fatalf("disabled breaker must never reject, got %v", err)
	}
}

func TestBreakerStatsAndStaleInfo(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = PolicyStaleCache
	r := NewRegistry(cfg, time.Hour, nil)
	ctx := context.Background()

	r.DoConsumer(ctx, "op", "C1", succeeding("v"))
	for i := 0; i < 5; i++ {
		r.DoConsumer(ctx, "op", "C1", failing)
	}
	r.DoConsumer(ctx, "op", "C1", failing)

	status := r.Status()
	if len(status) != 1 || status[0].Name != "op" {
		t.Fatalf("unexpected status: %+v", status)
	}
	stats := status[0].Stats
	if stats.Successes != 1 {
		t.Fatalf("expected 1 success, got %d", stats.Successes)
	}
	if stats.Failures == 0 || stats.Rejects == 0 || stats.Fallbacks != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}

	infos := r.StaleDataInfo()
	if len(infos) != 1 || infos[0].Key != "consumer_secret:C1" {
		t.Fatalf("unexpected stale info: %+v", infos)
	}
	if infos[0].AgeMinutes < 0 {
		t.Fatalf("negative age: %+v", infos[0])
	}
}

func TestBreakerShutdownIdempotent(t *testing.T) {
	r := NewRegistry(testConfig(), time.Hour, nil)
	ctx := context.Background()

	r.Do(ctx, "op", succeeding("v"))
	r.Shutdown()
	r.Shutdown()

	if _, err := r.Do(ctx, "op", succeeding("v")); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after shutdown, got %v", err)
	}
	if err := r.Configure("op", testConfig()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown from configure, got %v", err)
	}
}
