package performance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEventsPath is the event ingestion path of the target service.
const DefaultEventsPath = "/api/v1/events"

// RequestSink delivers one event to the service under test and reports
// the response status. A non-nil error means no response was received.
type RequestSink interface {
	Send(ctx context.Context, payload *Payload) (statusCode int, err error)
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for a single event request
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates a client tuned for many concurrent users talking
// to one host.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// HTTPSink posts events as JSON to the target's event ingestion path.
// It is safe for concurrent use; all users of a stage share one sink and
// its connection pool.
type HTTPSink struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// NewHTTPSink creates a sink posting to baseURL + path. An empty path
// uses DefaultEventsPath. A nil client gets the default configuration.
func NewHTTPSink(baseURL, path string, client *http.Client) *HTTPSink {
	if path == "" {
		path = DefaultEventsPath
	}
	if client == nil {
		client = NewHTTPClient(DefaultHTTPClientConfig())
	}
	return &HTTPSink{
		client: client,
		url:    strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		headers: map[string]string{
			"Content-Type": "application/json",
			"X-Load-Test":  "true",
		},
	}
}

// URL returns the full event endpoint.
func (s *HTTPSink) URL() string {
	return s.url
}

// Send posts the payload. The response body is drained so the connection
// can be reused.
func (s *HTTPSink) Send(ctx context.Context, payload *Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Close releases idle connections held by the sink's client.
func (s *HTTPSink) Close() {
	s.client.CloseIdleConnections()
}
