package internaldefs

import (
	kongmint "github.com/minterlabs/kongmint"
)

// CounterDef defines a public type used by kongmint APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   kongmint.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by kongmint APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   kongmint.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token service.
var CounterDefs = []CounterDef{
	{ID: kongmint.MetricTokenIssued, Name: "kongmint_tokens_issued_total", Help: "Successfully issued consumer tokens."},
	{ID: kongmint.MetricTokenIssueFailed, Name: "kongmint_token_issue_failed_total", Help: "Token issuance failures."},
	{ID: kongmint.MetricCacheHitLocal, Name: "kongmint_cache_hit_local_total", Help: "Credential cache hits on the local-memory tier."},
	{ID: kongmint.MetricCacheMissLocal, Name: "kongmint_cache_miss_local_total", Help: "Credential cache misses on the local-memory tier."},
	{ID: kongmint.MetricCacheHitRedis, Name: "kongmint_cache_hit_redis_total", Help: "Credential cache hits on the shared-redis tier."},
	{ID: kongmint.MetricCacheMissRedis, Name: "kongmint_cache_miss_redis_total", Help: "Credential cache misses on the shared-redis tier."},
	{ID: kongmint.MetricCachePollution, Name: "kongmint_cache_pollution_rejected_total", Help: "Credential cache writes rejected as polluted."},
	{ID: kongmint.MetricCacheFallback, Name: "kongmint_cache_fallback_total", Help: "Cache strategy fallbacks from shared-redis to local-memory."},
	{ID: kongmint.MetricKongSuccess, Name: "kongmint_kong_admin_success_total", Help: "Successful Kong admin API operations."},
	{ID: kongmint.MetricKongFailure, Name: "kongmint_kong_admin_failure_total", Help: "Failed Kong admin API operations."},
	{ID: kongmint.MetricBreakerOpened, Name: "kongmint_breaker_opened_total", Help: "Circuit breaker transitions into the open state."},
	{ID: kongmint.MetricBreakerFallbackServed, Name: "kongmint_breaker_fallback_served_total", Help: "Open-circuit requests answered from the stale store."},
	{ID: kongmint.MetricBreakerFallbackMissed, Name: "kongmint_breaker_fallback_missed_total", Help: "Open-circuit requests with no stale data to serve."},
}

// HistogramDefs is an exported constant or variable used by the token service.
var HistogramDefs = []HistogramDef{
	{ID: kongmint.MetricKongLatency, Name: "kongmint_kong_admin_latency_seconds", Help: "Kong admin API latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token service.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the token service.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
