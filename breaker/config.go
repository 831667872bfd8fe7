package breaker

import (
	"errors"
	"time"
)

// FallbackPolicy names what an open breaker returns in place of calling
// the wrapped operation.
type FallbackPolicy string

const (
	// PolicyDeny returns absence: the caller sees no result and no error.
	PolicyDeny FallbackPolicy = "deny"
	// PolicyStaleCache serves the operation's last-known-good value when
	// its age is within the configured tolerance.
	PolicyStaleCache FallbackPolicy = "stale_cache"
)

// Config describes one breaker's thresholds. The zero value is not usable;
// apply withDefaults or start from [DefaultConfig].
type Config struct {
	Enabled                  bool
	Timeout                  time.Duration
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	RollingCountTimeout      time.Duration
	RollingCountBuckets      int
	VolumeThreshold          uint32
	Fallback                 FallbackPolicy
}

// DefaultConfig returns the registry-wide breaker defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		Timeout:                  3 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Second,
		RollingCountTimeout:      10 * time.Second,
		RollingCountBuckets:      10,
		VolumeThreshold:          5,
		Fallback:                 PolicyDeny,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = def.ErrorThresholdPercentage
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.RollingCountTimeout <= 0 {
		c.RollingCountTimeout = def.RollingCountTimeout
	}
	if c.RollingCountBuckets <= 0 {
		c.RollingCountBuckets = def.RollingCountBuckets
	}
	if c.VolumeThreshold == 0 {
		c.VolumeThreshold = def.VolumeThreshold
	}
	if c.Fallback == "" {
		c.Fallback = def.Fallback
	}
	return c
}

// Validate rejects configurations the registry cannot honor.
func (c Config) Validate() error {
	if c.ErrorThresholdPercentage < 1 || c.ErrorThresholdPercentage > 100 {
		return errors.New("breaker: error threshold percentage must be within 1..100")
	}
	if c.Timeout <= 0 {
		return errors.New("breaker: timeout must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errors.New("breaker: reset timeout must be positive")
	}
	if c.RollingCountTimeout <= 0 {
		return errors.New("breaker: rolling count timeout must be positive")
	}
	if c.RollingCountBuckets <= 0 {
		return errors.New("breaker: rolling count buckets must be positive")
	}
	switch c.Fallback {
	case PolicyDeny, PolicyStaleCache:
	default:
		return errors.New("breaker: unknown fallback policy")
	}
	return nil
}
