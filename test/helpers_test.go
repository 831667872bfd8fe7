//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	kongmint "github.com/minterlabs/kongmint"
)

// adminStub is a controllable in-process Kong admin API. Tests flip failing
// to simulate a gateway outage.
type adminStub struct {
	mu      sync.Mutex
	failing bool
	srv     *httptest.Server
}

func newAdminStub(t *testing.T) *adminStub {
	t.Helper()

	stub := &adminStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		if stub.isFailing() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/consumers/", func(w http.ResponseWriter, r *http.Request) {
		if stub.isFailing() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[2] != "jwt" {
			http.NotFound(w, r)
			return
		}
		id := parts[1]
		cred := map[string]any{
			"id":     "cred-" + id,
			"key":    "key-" + id,
			"secret": "integration-secret-material-" + id,
			"consumer": map[string]any{
				"id": id,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(cred)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{cred}})
	})

	stub.srv = httptest.NewServer(mux)
	t.Cleanup(stub.srv.Close)

	return stub
}

func (s *adminStub) URL() string {
	return s.srv.URL
}

func (s *adminStub) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *adminStub) isFailing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}

func integrationConfig(adminURL, redisAddr string) kongmint.Config {
	var cfg kongmint.Config
	cfg.Kong.AdminURL = adminURL
	cfg.Kong.RequestTimeout = 2 * time.Second
	cfg.Caching.TTL = 5 * time.Minute
	cfg.Caching.MaxMemoryEntries = 1000
	if redisAddr != "" {
		cfg.Caching.HighAvailability = true
		cfg.Caching.RedisURL = "redis://" + redisAddr
	}
	cfg.CircuitBreaker.Enabled = true
	cfg.CircuitBreaker.Timeout = time.Second
	cfg.CircuitBreaker.ErrorThresholdPercentage = 50
	cfg.CircuitBreaker.ResetTimeout = time.Minute
	cfg.CircuitBreaker.RollingCountTimeout = 10 * time.Second
	cfg.CircuitBreaker.RollingCountBuckets = 10
	cfg.CircuitBreaker.VolumeThreshold = 3
	cfg.CircuitBreaker.Fallback = "deny"
	cfg.Reconnect.MaxAttempts = 3
	cfg.Reconnect.BaseDelay = 10 * time.Millisecond
	cfg.Reconnect.MaxDelay = 100 * time.Millisecond
	cfg.Reconnect.Cooldown = time.Second
	cfg.Token.TTL = 15 * time.Minute
	cfg.Token.Leeway = 30 * time.Second
	cfg.StaleDataTolerance = 30 * time.Minute
	return cfg
}

func newIntegrationRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr
}

// waitForRecovery polls until ok returns true or the deadline passes. Breaker
// half-open probes make exact recovery timing nondeterministic.
func waitForRecovery(t *testing.T, ok func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no recovery before deadline")
}

func newIntegrationService(t *testing.T, mutate func(*kongmint.Config)) (*kongmint.Service, *adminStub, *miniredis.Miniredis) {
	t.Helper()

	admin := newAdminStub(t)
	mr := newIntegrationRedis(t)

	cfg := integrationConfig(admin.URL(), mr.Addr())
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := kongmint.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("service build failed: %v", err)
	}
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	return svc, admin, mr
}
