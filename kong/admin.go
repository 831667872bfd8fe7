package kong

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrAdminUnavailable is an exported constant or variable used by the Kong client.
var ErrAdminUnavailable = errors.New("kong admin api unavailable")

// ErrAdminStatus is returned when the admin API answers with an unexpected
// HTTP status.
var ErrAdminStatus = errors.New("kong admin api unexpected status")

const defaultAdminTimeout = 5 * time.Second

// AdminClient talks to a Kong admin API over HTTP.
type AdminClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// AdminOption configures an [AdminClient].
type AdminOption func(*AdminClient)

// WithHTTPClient replaces the underlying HTTP client, e.g. for tests or
// custom transports.
func WithHTTPClient(httpc *http.Client) AdminOption {
	return func(c *AdminClient) { c.httpc = httpc }
}

// WithAPIKey sends the given key as the Kong-Admin-Token header.
func WithAPIKey(key string) AdminOption {
	return func(c *AdminClient) { c.apiKey = key }
}

// NewAdminClient creates a client for the admin API at baseURL.
func NewAdminClient(baseURL string, opts ...AdminOption) *AdminClient {
	c := &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultAdminTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialList struct {
	Data []ConsumerSecret `json:"data"`
}

// GetConsumerSecret implements [Client]. An unknown consumer or a consumer
// without a JWT credential returns (nil, nil).
func (c *AdminClient) GetConsumerSecret(ctx context.Context, consumerID string) (*ConsumerSecret, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(consumerID)+"/jwt", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d fetching jwt credentials", ErrAdminStatus, status)
	}

	var list credentialList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decoding jwt credentials: %v", ErrAdminUnavailable, err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	secret := list.Data[0]
	if secret.Consumer.ID == "" {
		secret.Consumer.ID = consumerID
	}
	return &secret, nil
}

// CreateConsumerSecret implements [Client]; Kong generates the key and
// secret pair.
func (c *AdminClient) CreateConsumerSecret(ctx context.Context, consumerID string) (*ConsumerSecret, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/consumers/"+url.PathEscape(consumerID)+"/jwt", strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, fmt.Errorf("%w: %d creating jwt credential", ErrAdminStatus, status)
	}

	var secret ConsumerSecret
	if err := json.Unmarshal(body, &secret); err != nil {
		return nil, fmt.Errorf("%w: decoding jwt credential: %v", ErrAdminUnavailable, err)
	}
	if secret.Consumer.ID == "" {
		secret.Consumer.ID = consumerID
	}
	return &secret, nil
}

// HealthCheck implements [Client] against the admin /status endpoint.
func (c *AdminClient) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	_, status, err := c.do(ctx, http.MethodGet, "/status", nil)
	elapsed := time.Since(start)

	if err != nil {
		return HealthStatus{ResponseTime: elapsed, Err: err.Error()}
	}
	if status != http.StatusOK {
		return HealthStatus{ResponseTime: elapsed, Err: fmt.Sprintf("status endpoint answered %d", status)}
	}
	return HealthStatus{Healthy: true, ResponseTime: elapsed}
}

func (c *AdminClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAdminUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Kong-Admin-Token", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrAdminUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading response: %v", ErrAdminUnavailable, err)
	}
	return payload, resp.StatusCode, nil
}
