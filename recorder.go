package kongmint

import (
	"time"

	"github.com/minterlabs/kongmint/breaker"
	"github.com/minterlabs/kongmint/cache"
)

// metricsRecorder adapts the cache and breaker observability hooks onto the
// service's counter registry. Every method is fire-and-forget.
type metricsRecorder struct {
	metrics *Metrics
}

func (r metricsRecorder) RecordCacheOperation(outcome string, tier string) {
	hit := outcome == cache.OutcomeHit
	switch {
	case tier == "redis" && hit:
		r.metrics.Inc(MetricCacheHitRedis)
	case tier == "redis":
		r.metrics.Inc(MetricCacheMissRedis)
	case hit:
		r.metrics.Inc(MetricCacheHitLocal)
	default:
		r.metrics.Inc(MetricCacheMissLocal)
	}
}

func (r metricsRecorder) RecordCachePollution(string) {
	r.metrics.Inc(MetricCachePollution)
}

func (r metricsRecorder) RecordCacheFallback(cache.Strategy, cache.Strategy) {
	r.metrics.Inc(MetricCacheFallback)
}

func (r metricsRecorder) RecordKongOperation(name string, duration time.Duration, success bool) {
	if success {
		r.metrics.Inc(MetricKongSuccess)
	} else {
		r.metrics.Inc(MetricKongFailure)
	}
	r.metrics.Observe(MetricKongLatency, duration)
}

func (r metricsRecorder) RecordBreakerTransition(name string, from, to string) {
	if to == "open" {
		r.metrics.Inc(MetricBreakerOpened)
	}
}

func (r metricsRecorder) RecordBreakerFallback(name string, policy breaker.FallbackPolicy, served bool) {
	if served {
		r.metrics.Inc(MetricBreakerFallbackServed)
	} else {
		r.metrics.Inc(MetricBreakerFallbackMissed)
	}
}
