package kong

import (
	"context"
	"time"
)

// ConsumerSecret is the JWT credential Kong stores per consumer. Key is the
// credential's issuer claim value; Secret signs tokens for the consumer.
type ConsumerSecret struct {
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Secret   string   `json:"secret"`
	Consumer Consumer `json:"consumer"`
}

// Consumer identifies the owning gateway consumer.
type Consumer struct {
	ID string `json:"id"`
}

// HealthStatus is the outcome of a gateway health probe.
type HealthStatus struct {
	Healthy      bool
	ResponseTime time.Duration
	Err          string
}

// Client is the admin-API surface the service depends on. A nil
// ConsumerSecret with a nil error means the consumer has no credential.
type Client interface {
	GetConsumerSecret(ctx context.Context, consumerID string) (*ConsumerSecret, error)
	CreateConsumerSecret(ctx context.Context, consumerID string) (*ConsumerSecret, error)
	HealthCheck(ctx context.Context) HealthStatus
}
