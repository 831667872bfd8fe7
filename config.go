package kongmint

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by kongmint APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Kong               KongConfig
	Caching            CachingConfig
	CircuitBreaker     CircuitBreakerConfig
	Reconnect          ReconnectConfig
	Token              TokenConfig
	Audit              AuditConfig
	Metrics            MetricsConfig
	StaleDataTolerance time.Duration
}

/*
====================================
KONG CONFIG
====================================
*/

// KongConfig defines a public type used by kongmint APIs.
//
// KongConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type KongConfig struct {
	AdminURL       string
	AdminToken     string
	RequestTimeout time.Duration
}

/*
====================================
CACHING CONFIG
====================================
*/

// CachingConfig defines a public type used by kongmint APIs.
//
// HighAvailability requests the shared-redis strategy; false requests
// local-memory. This is a request, not a guarantee — the active strategy may
// differ after fallback.
type CachingConfig struct {
	HighAvailability bool
	RedisURL         string
	TTL              time.Duration
	MaxMemoryEntries int
}

/*
====================================
CIRCUIT BREAKER CONFIG
====================================
*/

// CircuitBreakerConfig defines a public type used by kongmint APIs.
//
// The top-level value is the global default; Operations carries per-operation
// overrides keyed by operation name (a nested Operations map is ignored).
type CircuitBreakerConfig struct {
	Enabled                  bool
	Timeout                  time.Duration
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	RollingCountTimeout      time.Duration
	RollingCountBuckets      int
	VolumeThreshold          uint32
	Fallback                 string // "deny" (default) or "stale_cache"
	Operations               map[string]CircuitBreakerConfig
}

/*
====================================
RECONNECT CONFIG
====================================
*/

// ReconnectConfig defines a public type used by kongmint APIs.
//
// ReconnectConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ReconnectConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Cooldown    time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by kongmint APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	TTL          time.Duration
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by kongmint APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by kongmint APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Kong: KongConfig{
			AdminURL:       "http://localhost:8001",
			RequestTimeout: 5 * time.Second,
		},
		Caching: CachingConfig{
			HighAvailability: false,
			TTL:              5 * time.Minute,
			MaxMemoryEntries: 1000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:                  true,
			Timeout:                  3 * time.Second,
			ErrorThresholdPercentage: 50,
			ResetTimeout:             30 * time.Second,
			RollingCountTimeout:      10 * time.Second,
			RollingCountBuckets:      10,
			VolumeThreshold:          5,
			Fallback:                 "deny",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Cooldown:    time.Minute,
		},
		Token: TokenConfig{
			TTL:          15 * time.Minute,
			Leeway:       30 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		StaleDataTolerance: 30 * time.Minute,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.CircuitBreaker.Operations) > 0 {
		out.CircuitBreaker.Operations = make(map[string]CircuitBreakerConfig, len(cfg.CircuitBreaker.Operations))
		for name, op := range cfg.CircuitBreaker.Operations {
			op.Operations = nil
			out.CircuitBreaker.Operations[name] = op
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Kong
	if strings.TrimSpace(c.Kong.AdminURL) == "" {
		return errors.New("Kong AdminURL must be set")
	}
	if c.Kong.RequestTimeout <= 0 {
		return errors.New("Kong RequestTimeout must be > 0")
	}

	// Caching
	if c.Caching.TTL <= 0 {
		return errors.New("Caching TTL must be > 0")
	}
	if c.Caching.MaxMemoryEntries <= 0 {
		return errors.New("Caching MaxMemoryEntries must be > 0")
	}
	if c.Caching.HighAvailability && strings.TrimSpace(c.Caching.RedisURL) == "" {
		return errors.New("Caching HighAvailability requires RedisURL")
	}
	if c.StaleDataTolerance <= 0 {
		return errors.New("StaleDataTolerance must be > 0")
	}

	// Circuit breaker
	if err := validateBreakerConfig(c.CircuitBreaker); err != nil {
		return err
	}
	for name, op := range c.CircuitBreaker.Operations {
		if strings.TrimSpace(name) == "" {
			return errors.New("CircuitBreaker Operations contains empty operation name")
		}
		if err := validateBreakerConfig(op); err != nil {
			return err
		}
	}

	// Reconnect
	if c.Reconnect.MaxAttempts <= 0 {
		return errors.New("Reconnect MaxAttempts must be > 0")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return errors.New("Reconnect BaseDelay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return errors.New("Reconnect MaxDelay must be >= BaseDelay")
	}
	if c.Reconnect.Cooldown <= 0 {
		return errors.New("Reconnect Cooldown must be > 0")
	}

	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within 0..2m")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func validateBreakerConfig(cfg CircuitBreakerConfig) error {
	if cfg.ErrorThresholdPercentage < 1 || cfg.ErrorThresholdPercentage > 100 {
		return errors.New("CircuitBreaker ErrorThresholdPercentage must be within 1..100")
	}
	if cfg.Timeout <= 0 {
		return errors.New("CircuitBreaker Timeout must be > 0")
	}
	if cfg.ResetTimeout <= 0 {
		return errors.New("CircuitBreaker ResetTimeout must be > 0")
	}
	if cfg.RollingCountTimeout <= 0 {
		return errors.New("CircuitBreaker RollingCountTimeout must be > 0")
	}
	if cfg.RollingCountBuckets <= 0 {
		return errors.New("CircuitBreaker RollingCountBuckets must be > 0")
	}
	if cfg.Fallback != "deny" && cfg.Fallback != "stale_cache" {
		return errors.New("CircuitBreaker Fallback must be deny or stale_cache")
	}
	return nil
}
