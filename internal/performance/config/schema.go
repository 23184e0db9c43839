// Package config provides the scenario file format for stampede.
//
// A scenario file describes the target service, the task catalog, the SLA
// thresholds and the ordered list of load stages:
//
//	name: checkout-certification
//	target:
//	  baseUrl: http://localhost:8080
//	thinkTime:
//	  min: 100ms
//	  max: 500ms
//	thresholds:
//	  maxFailureRate: 0.01
//	  maxMedianLatency: 500ms
//	tasks:
//	  - category: click
//	    weight: 5
//	    priority: 1
//	stages:
//	  - name: Low Load
//	    users: 50
//	    spawnRate: 5
//	    duration: 30s
//
// Omitted fields are filled in by ApplyDefaults.
package config

import (
	"time"
)

// Config is the root of a scenario file.
type Config struct {
	// Name identifies the scenario in reports and history.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Target describes the service under test.
	Target TargetConfig `json:"target" yaml:"target"`

	// ThinkTime is the pause between two iterations of a virtual user.
	ThinkTime ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// GracePeriod bounds how long a stage waits for in-flight requests
	// after the stop signal.
	GracePeriod Duration `json:"gracePeriod,omitempty" yaml:"gracePeriod,omitempty"`

	// Pause between stages. A negative value disables it.
	Pause Duration `json:"pause,omitempty" yaml:"pause,omitempty"`

	// Seed makes task selection reproducible. Zero seeds from the clock.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Thresholds is the SLA applied to every stage.
	Thresholds ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Tasks is the weighted task catalog.
	Tasks []TaskConfig `json:"tasks,omitempty" yaml:"tasks,omitempty"`

	// Stages run in order.
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// TargetConfig locates the service under test.
type TargetConfig struct {
	BaseURL     string `json:"baseUrl" yaml:"baseUrl"`
	EventsPath  string `json:"eventsPath,omitempty" yaml:"eventsPath,omitempty"`
	HealthPath  string `json:"healthPath,omitempty" yaml:"healthPath,omitempty"`
	MetricsPath string `json:"metricsPath,omitempty" yaml:"metricsPath,omitempty"`

	// StatusPath is the gjson path of the status field in the health body.
	StatusPath string `json:"statusPath,omitempty" yaml:"statusPath,omitempty"`

	// Timeout applies to each event request.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// HealthTimeout applies to the preflight request.
	HealthTimeout Duration `json:"healthTimeout,omitempty" yaml:"healthTimeout,omitempty"`

	// AcceptedStatus is the only status code counted as success.
	AcceptedStatus int `json:"acceptedStatus,omitempty" yaml:"acceptedStatus,omitempty"`
}

// ThinkTimeConfig is a uniform think time range.
type ThinkTimeConfig struct {
	Min Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ThresholdsConfig holds the SLA limits. MaxFailureRate is a pointer so
// that an explicit zero (no failures tolerated) survives ApplyDefaults.
type ThresholdsConfig struct {
	MaxFailureRate   *float64 `json:"maxFailureRate,omitempty" yaml:"maxFailureRate,omitempty"`
	MaxMedianLatency Duration `json:"maxMedianLatency,omitempty" yaml:"maxMedianLatency,omitempty"`
}

// TaskConfig is one entry of the task catalog.
type TaskConfig struct {
	Category string `json:"category" yaml:"category"`
	Weight   int    `json:"weight" yaml:"weight"`
	Priority int    `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// StageConfig is one load stage.
type StageConfig struct {
	Name      string   `json:"name" yaml:"name"`
	Users     int      `json:"users" yaml:"users"`
	SpawnRate float64  `json:"spawnRate" yaml:"spawnRate"`
	Duration  Duration `json:"duration" yaml:"duration"`
}

// Duration is a time.Duration that marshals as a string like "30s".
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
