package kongmint

import (
	"fmt"
	"net/http"

	"github.com/minterlabs/kongmint/breaker"
	"github.com/minterlabs/kongmint/cache"
	"github.com/minterlabs/kongmint/jwt"
	"github.com/minterlabs/kongmint/kong"
)

// Builder defines a public type used by kongmint APIs.
//
// Builder assembles a [Service] from a validated configuration. A Builder is
// single-use: Build succeeds at most once, and the zero value is not usable;
// construct one with [New].
type Builder struct {
	config Config
	client kong.Client
	sink   AuditSink
	built  bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the builder's configuration wholesale. The config is
// deep-copied; later mutation of the argument has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKongClient injects a gateway client, replacing the default admin-API
// client. Mainly useful for tests and for callers that front the admin API
// with their own transport.
func (b *Builder) WithKongClient(client kong.Client) *Builder {
	b.client = client
	return b
}

// WithAuditSink injects the destination for audit events. Without a sink,
// enabling audit in config falls back to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, fmt.Errorf("kongmint: builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.built = true
	cfg := b.config

	client := b.client
	if client == nil {
		opts := []kong.AdminOption{
			kong.WithHTTPClient(&http.Client{Timeout: cfg.Kong.RequestTimeout}),
		}
		if cfg.Kong.AdminToken != "" {
			opts = append(opts, kong.WithAPIKey(cfg.Kong.AdminToken))
		}
		client = kong.NewAdminClient(cfg.Kong.AdminURL, opts...)
	}

	metrics := NewMetrics(cfg.Metrics)
	rec := &metricsRecorder{metrics: metrics}

	cacheManager := cache.NewManager(cache.Config{
		HighAvailability:   cfg.Caching.HighAvailability,
		RedisURL:           cfg.Caching.RedisURL,
		TTL:                cfg.Caching.TTL,
		MaxEntries:         cfg.Caching.MaxMemoryEntries,
		StaleDataTolerance: cfg.StaleDataTolerance,
	}, cache.ReconnectConfig{
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		BaseDelay:   cfg.Reconnect.BaseDelay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
		Cooldown:    cfg.Reconnect.Cooldown,
	}, rec)

	breakers := breaker.NewRegistry(breakerConfig(cfg.CircuitBreaker), cfg.StaleDataTolerance, rec)
	for name, opCfg := range cfg.CircuitBreaker.Operations {
		if err := breakers.Configure(name, breakerConfig(opCfg)); err != nil {
			return nil, err
		}
	}

	issuer, err := jwt.NewIssuer(jwt.Config{
		TokenTTL:     cfg.Token.TTL,
		Audience:     cfg.Token.Audience,
		Leeway:       cfg.Token.Leeway,
		RequireIAT:   cfg.Token.RequireIAT,
		MaxFutureIAT: cfg.Token.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	return &Service{
		config:   cfg,
		cache:    cacheManager,
		breakers: breakers,
		kong:     client,
		issuer:   issuer,
		metrics:  metrics,
		audit:    newAuditDispatcher(cfg.Audit, sink),
	}, nil
}

func breakerConfig(cfg CircuitBreakerConfig) breaker.Config {
	return breaker.Config{
		Enabled:                  cfg.Enabled,
		Timeout:                  cfg.Timeout,
		ErrorThresholdPercentage: cfg.ErrorThresholdPercentage,
		ResetTimeout:             cfg.ResetTimeout,
		RollingCountTimeout:      cfg.RollingCountTimeout,
		RollingCountBuckets:      cfg.RollingCountBuckets,
		VolumeThreshold:          cfg.VolumeThreshold,
		Fallback:                 breaker.FallbackPolicy(cfg.Fallback),
	}
}
