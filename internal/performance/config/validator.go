package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the scenario. Call it after ApplyDefaults.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateTarget(&c.Target, errs)

	if c.ThinkTime.Min < 0 || c.ThinkTime.Max < 0 {
		errs.Add("thinkTime", "must not be negative")
	} else if c.ThinkTime.Min > c.ThinkTime.Max {
		errs.Add("thinkTime", fmt.Sprintf("min (%s) must not exceed max (%s)", c.ThinkTime.Min, c.ThinkTime.Max))
	}

	if c.GracePeriod < 0 {
		errs.Add("gracePeriod", "must not be negative")
	}

	validateThresholds(&c.Thresholds, errs)

	if len(c.Tasks) == 0 {
		errs.Add("tasks", "at least one task is required")
	}
	seenTasks := make(map[string]bool)
	for i, task := range c.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if task.Category == "" {
			errs.Add(field+".category", "category is required")
		} else if seenTasks[task.Category] {
			errs.Add(field+".category", fmt.Sprintf("duplicate category %q", task.Category))
		}
		seenTasks[task.Category] = true
		if task.Weight <= 0 {
			errs.Add(field+".weight", "weight must be positive")
		}
	}

	if len(c.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	seenStages := make(map[string]bool)
	for i, s := range c.Stages {
		validateStage(i, s, seenStages, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTarget(t *TargetConfig, errs *ValidationErrors) {
	if t.BaseURL == "" {
		errs.Add("target.baseUrl", "base URL is required")
	} else if u, err := url.Parse(t.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("target.baseUrl", fmt.Sprintf("invalid URL: %s", t.BaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("target.baseUrl", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	paths := []struct{ field, path string }{
		{"target.eventsPath", t.EventsPath},
		{"target.healthPath", t.HealthPath},
		{"target.metricsPath", t.MetricsPath},
	}
	for _, p := range paths {
		if p.path != "" && !strings.HasPrefix(p.path, "/") {
			errs.Add(p.field, "path must start with '/'")
		}
	}

	if t.Timeout < 0 {
		errs.Add("target.timeout", "must not be negative")
	}
	if t.HealthTimeout < 0 {
		errs.Add("target.healthTimeout", "must not be negative")
	}
	if t.AcceptedStatus != 0 && (t.AcceptedStatus < 100 || t.AcceptedStatus > 599) {
		errs.Add("target.acceptedStatus", fmt.Sprintf("invalid HTTP status %d", t.AcceptedStatus))
	}
}

func validateThresholds(th *ThresholdsConfig, errs *ValidationErrors) {
	if th.MaxFailureRate != nil && (*th.MaxFailureRate < 0 || *th.MaxFailureRate > 1) {
		errs.Add("thresholds.maxFailureRate", "must be between 0 and 1")
	}
	if th.MaxMedianLatency < 0 {
		errs.Add("thresholds.maxMedianLatency", "must not be negative")
	}
}

func validateStage(i int, s StageConfig, seen map[string]bool, errs *ValidationErrors) {
	field := fmt.Sprintf("stages[%d]", i)

	if s.Name == "" {
		errs.Add(field+".name", "name is required")
	} else if seen[s.Name] {
		errs.Add(field+".name", fmt.Sprintf("duplicate stage name %q", s.Name))
	}
	seen[s.Name] = true

	if s.Users <= 0 {
		errs.Add(field+".users", "users must be positive")
	}
	if s.SpawnRate <= 0 {
		errs.Add(field+".spawnRate", "spawnRate must be positive")
	}
	if s.Duration <= 0 {
		errs.Add(field+".duration", "duration must be positive")
	}
}
