package kongmint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/minterlabs/kongmint/breaker"
	"github.com/minterlabs/kongmint/cache"
	"github.com/minterlabs/kongmint/jwt"
	"github.com/minterlabs/kongmint/kong"
)

// Service defines a public type used by kongmint APIs.
//
// Service is safe for concurrent use after construction through
// [Builder.Build]. Credential reads degrade rather than fail: a gateway or
// cache outage yields absence, never a transport error, and the caller turns
// absence into its own user-facing response.
type Service struct {
	config   Config
	cache    *cache.Manager
	breakers *breaker.Registry
	kong     kong.Client
	issuer   *jwt.Issuer
	metrics  *Metrics
	audit    *auditDispatcher
	closed   atomic.Bool
}

// GetConsumerSecret describes the getconsumersecret operation and its observable behavior.
//
// The lookup is read-through: cache first, then the gateway through the
// circuit breaker, writing back on success. A nil secret with a nil error
// means the credential could not be produced through any path.
// GetConsumerSecret does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) GetConsumerSecret(ctx context.Context, consumerID string) (*kong.ConsumerSecret, error) {
	if err := s.guard(consumerID); err != nil {
		return nil, err
	}

	key := cache.ConsumerSecretKey(consumerID)
	if secret, ok := cache.GetTyped[kong.ConsumerSecret](ctx, s.cache, key); ok {
		return &secret, nil
	}

	secret, fresh := s.fetchThroughBreaker(ctx, OpGetConsumerSecret, consumerID)
	if secret == nil {
		return nil, nil
	}

	if fresh {
		cache.SetTyped(ctx, s.cache, key, *secret, 0)
		s.auditEvent(ctx, AuditSecretFetched, consumerID, OpGetConsumerSecret, true, "")
	}
	return secret, nil
}

// EnsureConsumerSecret describes the ensureconsumersecret operation and its observable behavior.
//
// EnsureConsumerSecret provisions a credential for consumers that have none,
// then behaves like [Service.GetConsumerSecret].
// EnsureConsumerSecret does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) EnsureConsumerSecret(ctx context.Context, consumerID string) (*kong.ConsumerSecret, error) {
	secret, err := s.GetConsumerSecret(ctx, consumerID)
	if err != nil || secret != nil {
		return secret, err
	}

	secret, fresh := s.createThroughBreaker(ctx, consumerID)
	if secret == nil {
		return nil, nil
	}

	if fresh {
		cache.SetTyped(ctx, s.cache, cache.ConsumerSecretKey(consumerID), *secret, 0)
		s.auditEvent(ctx, AuditSecretCreated, consumerID, OpCreateConsumerSecret, true, "")
	}
	return secret, nil
}

// IssueToken describes the issuetoken operation and its observable behavior.
//
// IssueToken may return an error when input validation, dependency calls, or security checks fail.
// IssueToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) IssueToken(ctx context.Context, consumerID string) (*IssuedToken, error) {
	secret, err := s.EnsureConsumerSecret(ctx, consumerID)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		s.metrics.Inc(MetricTokenIssueFailed)
		s.auditEvent(ctx, AuditTokenFailed, consumerID, "", false, ErrCredentialUnavailable.Error())
		return nil, fmt.Errorf("%w: consumer %s", ErrCredentialUnavailable, consumerID)
	}

	now := time.Now()
	token, err := s.issuer.Issue(consumerID, secret.Key, secret.Secret)
	if err != nil {
		s.metrics.Inc(MetricTokenIssueFailed)
		s.auditEvent(ctx, AuditTokenFailed, consumerID, "", false, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrTokenIssueFailed, err)
	}

	s.metrics.Inc(MetricTokenIssued)
	s.auditEvent(ctx, AuditTokenIssued, consumerID, "", true, "")

	return &IssuedToken{
		Token:      token,
		ConsumerID: consumerID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.config.Token.TTL),
	}, nil
}

// ValidateToken describes the validatetoken operation and its observable behavior.
//
// ValidateToken may return an error when input validation, dependency calls, or security checks fail.
// ValidateToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) ValidateToken(ctx context.Context, consumerID, token string) (*jwt.ConsumerClaims, error) {
	secret, err := s.GetConsumerSecret(ctx, consumerID)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("%w: consumer %s", ErrCredentialUnavailable, consumerID)
	}
	return s.issuer.Parse(token, secret.Key, secret.Secret)
}

// InvalidateConsumer describes the invalidateconsumer operation and its observable behavior.
//
// InvalidateConsumer removes the consumer's cached credential from the
// primary cache namespace. Stale copies survive: they exist precisely for
// outages and age out on their own.
func (s *Service) InvalidateConsumer(ctx context.Context, consumerID string) error {
	if err := s.guard(consumerID); err != nil {
		return err
	}
	s.cache.Delete(ctx, cache.ConsumerSecretKey(consumerID))
	s.auditEvent(ctx, AuditConsumerCleared, consumerID, "", true, "")
	return nil
}

// HealthCheck describes the healthcheck operation and its observable behavior.
//
// HealthCheck does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{Breakers: s.breakers.Status()}
	if s.closed.Load() {
		report.Kong.Err = ErrServiceClosed.Error()
		return report
	}

	value, err := s.breakers.Do(ctx, OpHealthCheck, func(ctx context.Context) (any, error) {
		status := s.kong.HealthCheck(ctx)
		if !status.Healthy {
			return status, fmt.Errorf("gateway unhealthy: %s", status.Err)
		}
		return status, nil
	})
	if status, ok := value.(kong.HealthStatus); ok {
		report.Kong = status
	} else if err != nil {
		report.Kong.Err = err.Error()
	}

	report.CacheHealthy = s.cache.Healthy(ctx)
	report.CacheStrategy = s.cache.Strategy()
	report.Breakers = s.breakers.Status()
	report.Healthy = report.Kong.Healthy && report.CacheHealthy
	return report
}

// Reconfigure describes the reconfigure operation and its observable behavior.
//
// Reconfigure applies a new caching configuration at runtime. An unchanged
// strategy keeps the active backend and its data; a changed strategy swaps
// the backend wholesale.
func (s *Service) Reconfigure(ctx context.Context, cfg CachingConfig) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	s.cache.Reconfigure(ctx, cache.Config{
		HighAvailability:   cfg.HighAvailability,
		RedisURL:           cfg.RedisURL,
		TTL:                cfg.TTL,
		MaxEntries:         cfg.MaxMemoryEntries,
		StaleDataTolerance: s.config.StaleDataTolerance,
	})
	s.config.Caching = cfg
	s.auditEvent(ctx, AuditReconfigured, "", "", true, "")
	return nil
}

// Shutdown describes the shutdown operation and its observable behavior.
//
// Shutdown releases the cache backend, disposes every breaker, and stops the
// audit dispatcher after draining it. Safe to call repeatedly.
func (s *Service) Shutdown(ctx context.Context) {
	if s.closed.Swap(true) {
		return
	}
	s.auditEvent(ctx, AuditShutdown, "", "", true, "")
	s.audit.Close()
	s.breakers.Shutdown()
	s.cache.Shutdown(ctx)
}

// CacheStats describes the cachestats operation and its observable behavior.
//
// CacheStats does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) CacheStats(ctx context.Context) cache.Stats {
	return s.cache.Stats(ctx)
}

// CacheStrategy reports the active cache strategy, or "" before first use.
func (s *Service) CacheStrategy() cache.Strategy {
	return s.cache.Strategy()
}

// BreakerStatus describes the breakerstatus operation and its observable behavior.
//
// BreakerStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) BreakerStatus() []breaker.OperationStatus {
	return s.breakers.Status()
}

// StaleDataInfo describes the staledatainfo operation and its observable behavior.
//
// StaleDataInfo does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) StaleDataInfo() []breaker.StaleDataInfo {
	return s.breakers.StaleDataInfo()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

func (s *Service) guard(consumerID string) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	if strings.TrimSpace(consumerID) == "" {
		return ErrConsumerInvalid
	}
	return nil
}

// fetchThroughBreaker runs the gateway lookup under the named breaker and
// absorbs every transient failure into absence: upstream errors, timeouts,
// and open-circuit rejections are logged and audited, never returned.
func (s *Service) fetchThroughBreaker(ctx context.Context, name, consumerID string) (*kong.ConsumerSecret, bool) {
	value, err := s.breakers.DoConsumer(ctx, name, consumerID, func(ctx context.Context) (any, error) {
		secret, err := s.kong.GetConsumerSecret(ctx, consumerID)
		if err != nil {
			return nil, err
		}
		if secret == nil {
			return nil, nil
		}
		return secret, nil
	})
	return s.absorb(ctx, name, consumerID, value, err)
}

func (s *Service) createThroughBreaker(ctx context.Context, consumerID string) (*kong.ConsumerSecret, bool) {
	value, err := s.breakers.DoConsumer(ctx, OpCreateConsumerSecret, consumerID, func(ctx context.Context) (any, error) {
		secret, err := s.kong.CreateConsumerSecret(ctx, consumerID)
		if err != nil {
			return nil, err
		}
		if secret == nil {
			return nil, nil
		}
		return secret, nil
	})
	return s.absorb(ctx, OpCreateConsumerSecret, consumerID, value, err)
}

// absorb turns a breaker result into an optional credential. It returns the
// credential plus whether it came fresh from the gateway; stale fallbacks
// report false so callers skip the primary-cache write-through.
func (s *Service) absorb(ctx context.Context, name, consumerID string, value any, err error) (*kong.ConsumerSecret, bool) {
	if err != nil {
		if !errors.Is(err, breaker.ErrCircuitOpen) {
			log.Print("kongmint: ", name, " failed for consumer ", consumerID, ": ", err)
		}
		s.auditEvent(ctx, AuditSecretFetched, consumerID, name, false, err.Error())
		return nil, false
	}
	if value == nil {
		return nil, true
	}
	secret, ok := value.(*kong.ConsumerSecret)
	if !ok {
		return nil, false
	}
	// A credential whose embedded consumer does not match the lookup must
	// never be served; the same rule the cache enforces on writes.
	if secret.Consumer.ID != "" && secret.Consumer.ID != consumerID {
		log.Print("kongmint: ", name, " returned credential for foreign consumer, dropping")
		return nil, false
	}
	// A nil error while the breaker is open means the stale store answered.
	if s.breakers.State(name) == "open" {
		s.auditEvent(ctx, AuditStaleServed, consumerID, name, true, "")
		return secret, false
	}
	return secret, true
}

func (s *Service) auditEvent(ctx context.Context, eventType, consumerID, operation string, success bool, errMsg string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, AuditEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		EventType:  eventType,
		ConsumerID: consumerID,
		Operation:  operation,
		RequestID:  requestIDFromContext(ctx),
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Error:      errMsg,
	})
}
