//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	kongmint "github.com/minterlabs/kongmint"
)

// Two service instances sharing one Redis must see each other's cached
// credentials: the first fetch populates the shared tier and the second
// instance reads it without touching the gateway.
func TestSharedRedisCacheAcrossInstances(t *testing.T) {
	admin := newAdminStub(t)
	mr := newIntegrationRedis(t)
	cfg := integrationConfig(admin.URL(), mr.Addr())

	first, err := kongmint.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer first.Shutdown(context.Background())

	second, err := kongmint.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	defer second.Shutdown(context.Background())

	ctx := context.Background()
	if secret, err := first.GetConsumerSecret(ctx, "c1"); err != nil || secret == nil {
		t.Fatalf("first instance fetch: (%+v, %v)", secret, err)
	}

	// The second instance must now be served from Redis even with the
	// gateway down.
	admin.SetFailing(true)
	secret, err := second.GetConsumerSecret(ctx, "c1")
	if err != nil {
		t.Fatalf("second instance fetch: %v", err)
	}
	if secret == nil || secret.Key != "key-c1" {
		t.Fatalf("second instance got %+v, want shared cached credential", secret)
	}
}

func TestRedisStrategySelectedWhenAvailable(t *testing.T) {
	svc, _, _ := newIntegrationService(t, nil)

	if _, err := svc.GetConsumerSecret(context.Background(), "c1"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := svc.CacheStrategy(); got != "shared-redis" {
		t.Fatalf("CacheStrategy = %q, want shared-redis", got)
	}
}

func TestFallsBackToLocalMemoryWhenRedisUnreachable(t *testing.T) {
	admin := newAdminStub(t)
	cfg := integrationConfig(admin.URL(), "")
	cfg.Caching.HighAvailability = true
	cfg.Caching.RedisURL = "redis://127.0.0.1:1"

	svc, err := kongmint.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer svc.Shutdown(context.Background())

	ctx := context.Background()
	if secret, err := svc.GetConsumerSecret(ctx, "c1"); err != nil || secret == nil {
		t.Fatalf("fetch through fallback: (%+v, %v)", secret, err)
	}
	if got := svc.CacheStrategy(); got != "local-memory" {
		t.Fatalf("CacheStrategy = %q, want local-memory after fallback", got)
	}
}

func TestStaleNamespaceSurvivesPrimaryExpiry(t *testing.T) {
	svc, admin, mr := newIntegrationService(t, func(cfg *kongmint.Config) {
		cfg.CircuitBreaker.Fallback = "deny"
	})

	ctx := context.Background()
	if secret, err := svc.GetConsumerSecret(ctx, "c1"); err != nil || secret == nil {
		t.Fatalf("seed fetch: (%+v, %v)", secret, err)
	}

	// Past the primary TTL but inside the stale tolerance.
	mr.FastForward(6 * time.Minute)
	admin.SetFailing(true)

	stats := svc.CacheStats(ctx)
	if stats.StaleEntries == 0 {
		t.Fatalf("expected surviving stale entries, stats = %+v", stats)
	}
}
