package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	kongmint "github.com/minterlabs/kongmint"
)

func main() {
	var (
		consumers   = flag.Int("consumers", 10000, "number of distinct consumers")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (issue + read)")
		ha          = flag.Bool("ha", false, "use the shared-redis cache strategy")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty with -ha, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *consumers <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "consumers, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	admin, adminURL := startStubAdmin()
	defer admin.Close()
	fmt.Printf("stub kong admin at %s\n", adminURL)

	svc, cleanup, err := buildService(adminURL, *ha, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	defer svc.Shutdown(ctx)

	ids := make([]string, *consumers)
	for i := range ids {
		ids[i] = fmt.Sprintf("consumer-%d", i)
	}

	issueStats := runPhase(ctx, ids, *ops, *concurrency, func(ctx context.Context, id string) error {
		_, err := svc.IssueToken(ctx, id)
		return err
	})
	readStats := runPhase(ctx, ids, *ops, *concurrency, func(ctx context.Context, id string) error {
		secret, err := svc.GetConsumerSecret(ctx, id)
		if err == nil && secret == nil {
			return fmt.Errorf("no credential for %s", id)
		}
		return err
	})

	stats := svc.CacheStats(ctx)
	fmt.Printf("cache: strategy=%s size=%d hit-rate=%s%%\n", stats.Strategy, stats.Size, stats.HitRate)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("read", readStats)
}

func buildService(adminURL string, ha bool, redisAddr string) (*kongmint.Service, func(), error) {
	cfg := loadConfig()
	cfg.Kong.AdminURL = adminURL
	cleanup := func() {}

	if ha {
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			cleanup = mr.Close
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		cfg.Caching.HighAvailability = true
		cfg.Caching.RedisURL = "redis://" + addr
	}

	svc, err := kongmint.New().WithConfig(cfg).WithMetricsEnabled(true).Build()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

func loadConfig() kongmint.Config {
	cfg := kongmint.Config{}
	cfg.Kong.AdminURL = "http://localhost:8001"
	cfg.Kong.RequestTimeout = 5 * time.Second
	cfg.Caching.TTL = 5 * time.Minute
	cfg.Caching.MaxMemoryEntries = 1 << 20
	cfg.CircuitBreaker.Enabled = true
	cfg.CircuitBreaker.Timeout = 3 * time.Second
	cfg.CircuitBreaker.ErrorThresholdPercentage = 50
	cfg.CircuitBreaker.ResetTimeout = 30 * time.Second
	cfg.CircuitBreaker.RollingCountTimeout = 10 * time.Second
	cfg.CircuitBreaker.RollingCountBuckets = 10
	cfg.CircuitBreaker.VolumeThreshold = 20
	cfg.CircuitBreaker.Fallback = "stale_cache"
	cfg.Reconnect.MaxAttempts = 5
	cfg.Reconnect.BaseDelay = 100 * time.Millisecond
	cfg.Reconnect.MaxDelay = 5 * time.Second
	cfg.Reconnect.Cooldown = time.Minute
	cfg.Token.TTL = 15 * time.Minute
	cfg.StaleDataTolerance = 30 * time.Minute
	return cfg
}

// startStubAdmin serves just enough of the Kong admin API for the load test:
// per-consumer JWT credentials and a status endpoint.
func startStubAdmin() (*http.Server, string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen failed: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/consumers/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[2] != "jwt" {
			http.NotFound(w, r)
			return
		}
		id := parts[1]
		cred := map[string]any{
			"id":     "cred-" + id,
			"key":    "key-" + id,
			"secret": "load-test-secret-material-" + id,
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

	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(ln) }()

	return srv, "http://" + ln.Addr().String()
}

func runPhase(ctx context.Context, ids []string, ops, concurrency int, fn func(context.Context, string) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := ids[r.Intn(len(ids))]
				t0 := time.Now()
				err := fn(ctx, id)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/s=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
