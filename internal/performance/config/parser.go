package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/health"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

// Default values applied by ApplyDefaults.
const (
	DefaultBaseURL        = "http://localhost"
	DefaultRequestTimeout = 30 * time.Second
	DefaultAcceptedStatus = performance.DefaultAcceptedStatus
	DefaultPause          = 10 * time.Second
)

// LoadConfig loads a scenario from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses scenario data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		// Try YAML by default
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// DefaultStages returns the four-stage certification ladder.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Name: "Low Load", Users: 50, SpawnRate: 5, Duration: Duration(30 * time.Second)},
		{Name: "Medium Load", Users: 200, SpawnRate: 20, Duration: Duration(time.Minute)},
		{Name: "High Load", Users: 500, SpawnRate: 50, Duration: Duration(2 * time.Minute)},
		{Name: "Peak Load", Users: 1000, SpawnRate: 100, Duration: Duration(30 * time.Second)},
	}
}

// Default returns a complete scenario with every default applied.
func Default() *Config {
	c := &Config{}
	ApplyDefaults(c)
	return c
}

// ApplyDefaults fills in every field left empty.
func ApplyDefaults(config *Config) {
	if config.Name == "" {
		config.Name = "default"
	}

	t := &config.Target
	if t.BaseURL == "" {
		t.BaseURL = DefaultBaseURL
	}
	if t.EventsPath == "" {
		t.EventsPath = performance.DefaultEventsPath
	}
	if t.HealthPath == "" {
		t.HealthPath = health.DefaultHealthPath
	}
	if t.MetricsPath == "" {
		t.MetricsPath = health.DefaultMetricsPath
	}
	if t.StatusPath == "" {
		t.StatusPath = health.DefaultStatusPath
	}
	if t.Timeout == 0 {
		t.Timeout = Duration(DefaultRequestTimeout)
	}
	if t.HealthTimeout == 0 {
		t.HealthTimeout = Duration(health.DefaultTimeout)
	}
	if t.AcceptedStatus == 0 {
		t.AcceptedStatus = DefaultAcceptedStatus
	}

	think := performance.DefaultThinkTime()
	if config.ThinkTime.Min == 0 && config.ThinkTime.Max == 0 {
		config.ThinkTime.Min = Duration(think.Min)
		config.ThinkTime.Max = Duration(think.Max)
	}

	if config.GracePeriod == 0 {
		config.GracePeriod = Duration(stage.DefaultGracePeriod)
	}
	if config.Pause == 0 {
		config.Pause = Duration(DefaultPause)
	}

	if config.Thresholds.MaxFailureRate == nil {
		rate := sla.DefaultMaxFailureRate
		config.Thresholds.MaxFailureRate = &rate
	}
	if config.Thresholds.MaxMedianLatency == 0 {
		config.Thresholds.MaxMedianLatency = Duration(sla.DefaultMaxMedianLatency)
	}

	if len(config.Tasks) == 0 {
		for _, task := range performance.DefaultCatalog() {
			config.Tasks = append(config.Tasks, TaskConfig{
				Category: task.Category,
				Weight:   task.Weight,
				Priority: task.Priority,
			})
		}
	}

	if len(config.Stages) == 0 {
		config.Stages = DefaultStages()
	}
}

// StageSpecs converts the configured stages.
func (c *Config) StageSpecs() []stage.Spec {
	specs := make([]stage.Spec, len(c.Stages))
	for i, s := range c.Stages {
		specs[i] = stage.Spec{
			Name:        s.Name,
			TargetUsers: s.Users,
			SpawnRate:   s.SpawnRate,
			Duration:    time.Duration(s.Duration),
		}
	}
	return specs
}

// TaskDefinitions converts the task catalog. Payload builders are chosen
// by category.
func (c *Config) TaskDefinitions() []performance.TaskDefinition {
	tasks := make([]performance.TaskDefinition, len(c.Tasks))
	for i, t := range c.Tasks {
		tasks[i] = performance.TaskDefinition{
			Category: t.Category,
			Weight:   t.Weight,
			Priority: t.Priority,
			Build:    performance.BuilderFor(t.Category),
		}
	}
	return tasks
}

// SLAThresholds converts the configured thresholds, using the defaults for
// anything unset.
func (c *Config) SLAThresholds() sla.Thresholds {
	th := sla.Default()
	if c.Thresholds.MaxFailureRate != nil {
		th.MaxFailureRate = *c.Thresholds.MaxFailureRate
	}
	th.MaxMedianLatency = c.Thresholds.MaxMedianLatency.GetDuration(th.MaxMedianLatency)
	return th
}

// ThinkTimeRange converts the configured think time.
func (c *Config) ThinkTimeRange() performance.ThinkTime {
	return performance.ThinkTime{
		Min: time.Duration(c.ThinkTime.Min),
		Max: time.Duration(c.ThinkTime.Max),
	}
}

// PauseDuration returns the pause between stages; a negative configured
// value is returned as is so that the orchestrator disables the pause.
func (c *Config) PauseDuration() time.Duration {
	return time.Duration(c.Pause)
}
