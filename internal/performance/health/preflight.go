// Package health checks that the target service is ready before any load
// is generated, and reads the target's own metrics on a best-effort basis.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrUnhealthy is returned when the target answered but is not healthy.
var ErrUnhealthy = errors.New("service is not healthy")

// Defaults for the target's well-known endpoints.
const (
	DefaultHealthPath  = "/api/v1/health"
	DefaultMetricsPath = "/api/v1/metrics"
	DefaultTimeout     = 5 * time.Second
	DefaultStatusPath  = "status"
)

// maxBodySize bounds how much of a health or metrics body is read.
const maxBodySize = 1 << 20

// statusSchema requires the health document to carry a string status.
const statusSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "minLength": 1}
	}
}`

// healthyIndicators are the status values accepted as healthy.
var healthyIndicators = map[string]bool{
	"healthy": true,
	"ok":      true,
	"up":      true,
	"pass":    true,
}

// Config configures a Preflight.
type Config struct {
	BaseURL     string
	HealthPath  string
	MetricsPath string

	// Timeout bounds each request (default 5s)
	Timeout time.Duration

	// StatusPath is the gjson path of the status field (default "status")
	StatusPath string

	Client *http.Client
	Logger logrus.FieldLogger
}

// Status is the result of a health check.
type Status struct {
	URL        string        `json:"url"`
	StatusCode int           `json:"statusCode"`
	Status     string        `json:"status"`
	Latency    time.Duration `json:"latency"`
	Body       string        `json:"body,omitempty"`
}

// Preflight checks the target's health endpoint.
type Preflight struct {
	cfg    Config
	schema *jsonschema.Schema
	client *http.Client
	logger logrus.FieldLogger
}

// NewPreflight creates a preflight checker for cfg.BaseURL.
func NewPreflight(cfg Config) (*Preflight, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("health check requires a target URL")
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("health.json", strings.NewReader(statusSchema)); err != nil {
		return nil, fmt.Errorf("invalid health schema: %w", err)
	}
	schema, err := compiler.Compile("health.json")
	if err != nil {
		return nil, fmt.Errorf("invalid health schema: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Preflight{
		cfg:    cfg,
		schema: schema,
		client: client,
		logger: logger,
	}, nil
}

// HealthURL returns the full health endpoint.
func (p *Preflight) HealthURL() string {
	return joinURL(p.cfg.BaseURL, p.cfg.HealthPath)
}

// MetricsURL returns the full metrics endpoint.
func (p *Preflight) MetricsURL() string {
	return joinURL(p.cfg.BaseURL, p.cfg.MetricsPath)
}

// Check returns nil when the target is healthy.
func (p *Preflight) Check(ctx context.Context) error {
	_, err := p.Status(ctx)
	return err
}

// Status issues one health request and interprets the answer.
//
// The target is healthy when it answers 200 with a JSON document whose
// status field is one of healthy, ok, up or pass (case-insensitive).
// The returned Status is non-nil whenever a response was received.
func (p *Preflight) Status(ctx context.Context) (*Status, error) {
	url := p.HealthURL()
	logger := p.logger.WithField("url", url)
	logger.Info("checking service health")

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build health request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		logger.WithError(err).Error("health check failed")
		return nil, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	status := &Status{
		URL:        url,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		Body:       string(body),
	}
	if err != nil {
		return status, fmt.Errorf("failed to read health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status_code", resp.StatusCode).Error("health check failed")
		return status, fmt.Errorf("%w: health endpoint returned %d", ErrUnhealthy, resp.StatusCode)
	}

	if err := p.validate(body); err != nil {
		logger.WithError(err).Error("health check failed")
		return status, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}

	status.Status = gjson.GetBytes(body, p.cfg.StatusPath).String()
	if !IsHealthyStatus(status.Status) {
		logger.WithField("health", status.Status).Error("health check failed")
		return status, fmt.Errorf("%w: status %q", ErrUnhealthy, status.Status)
	}

	logger.WithFields(logrus.Fields{
		"health":  status.Status,
		"latency": status.Latency.String(),
	}).Info("service is healthy")
	return status, nil
}

func (p *Preflight) validate(body []byte) error {
	if !gjson.ValidBytes(body) {
		return errors.New("health response is not valid JSON")
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("health response is not valid JSON: %w", err)
	}

	// The schema describes the default layout; a custom status path is
	// checked with gjson alone.
	if p.cfg.StatusPath == DefaultStatusPath {
		if err := p.schema.Validate(doc); err != nil {
			return fmt.Errorf("unexpected health document: %w", err)
		}
		return nil
	}

	if !gjson.GetBytes(body, p.cfg.StatusPath).Exists() {
		return fmt.Errorf("health document has no %s field", p.cfg.StatusPath)
	}
	return nil
}

// IsHealthyStatus reports whether s is a recognised healthy indicator.
func IsHealthyStatus(s string) bool {
	return healthyIndicators[strings.ToLower(strings.TrimSpace(s))]
}

// FetchMetrics returns the body of the target's metrics endpoint, or an
// empty string if it cannot be fetched. Errors are logged at debug level
// and otherwise ignored.
func (p *Preflight) FetchMetrics(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.MetricsURL(), nil)
	if err != nil {
		return ""
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithError(err).Debug("metrics endpoint unavailable")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.WithField("status_code", resp.StatusCode).Debug("metrics endpoint unavailable")
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return ""
	}
	return string(body)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
