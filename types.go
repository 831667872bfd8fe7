package kongmint

import (
	"time"

	"github.com/minterlabs/kongmint/breaker"
	"github.com/minterlabs/kongmint/cache"
	"github.com/minterlabs/kongmint/kong"
)

// IssuedToken defines a public type used by kongmint APIs.
//
// IssuedToken instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IssuedToken struct {
	Token      string
	ConsumerID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// HealthReport defines a public type used by kongmint APIs.
//
// Healthy is the conjunction of the gateway probe and the cache backend;
// breaker states are included for operators, not for the verdict.
type HealthReport struct {
	Healthy       bool
	Kong          kong.HealthStatus
	CacheHealthy  bool
	CacheStrategy cache.Strategy
	Breakers      []breaker.OperationStatus
}

// Operation names used for the per-operation circuit breakers.
const (
	OpGetConsumerSecret    = "getConsumerSecret"
	OpCreateConsumerSecret = "createConsumerSecret"
	OpHealthCheck          = "healthCheck"
)
