package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{
		Target: TargetConfig{BaseURL: "http://localhost:8080"},
		Stages: []StageConfig{{Name: "Low Load", Users: 5, SpawnRate: 1, Duration: Duration(time.Second)}},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	rate := 1.5

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing base URL", mutate: func(c *Config) { c.Target.BaseURL = "" }, wantField: "target.baseUrl"},
		{name: "relative base URL", mutate: func(c *Config) { c.Target.BaseURL = "localhost:8080" }, wantField: "target.baseUrl"},
		{name: "unsupported scheme", mutate: func(c *Config) { c.Target.BaseURL = "ftp://host" }, wantField: "target.baseUrl"},
		{name: "events path without slash", mutate: func(c *Config) { c.Target.EventsPath = "events" }, wantField: "target.eventsPath"},
		{name: "bad accepted status", mutate: func(c *Config) { c.Target.AcceptedStatus = 42 }, wantField: "target.acceptedStatus"},
		{
			name:      "think time inverted",
			mutate:    func(c *Config) { c.ThinkTime = ThinkTimeConfig{Min: Duration(time.Second), Max: Duration(time.Millisecond)} },
			wantField: "thinkTime",
		},
		{name: "failure rate above one", mutate: func(c *Config) { c.Thresholds.MaxFailureRate = &rate }, wantField: "thresholds.maxFailureRate"},
		{name: "no tasks", mutate: func(c *Config) { c.Tasks = nil }, wantField: "tasks"},
		{name: "zero weight", mutate: func(c *Config) { c.Tasks[0].Weight = 0 }, wantField: "tasks[0].weight"},
		{name: "duplicate category", mutate: func(c *Config) { c.Tasks[1].Category = c.Tasks[0].Category }, wantField: "tasks[1].category"},
		{name: "no stages", mutate: func(c *Config) { c.Stages = nil }, wantField: "stages"},
		{name: "stage without name", mutate: func(c *Config) { c.Stages[0].Name = "" }, wantField: "stages[0].name"},
		{name: "zero users", mutate: func(c *Config) { c.Stages[0].Users = 0 }, wantField: "stages[0].users"},
		{name: "zero spawn rate", mutate: func(c *Config) { c.Stages[0].SpawnRate = 0 }, wantField: "stages[0].spawnRate"},
		{name: "zero duration", mutate: func(c *Config) { c.Stages[0].Duration = 0 }, wantField: "stages[0].duration"},
		{
			name:      "duplicate stage name",
			mutate:    func(c *Config) { c.Stages = append(c.Stages, c.Stages[0]) },
			wantField: "stages[1].name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want *ValidationErrors", err)
			}
			found := false
			for _, e := range verrs.Errors {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.wantField, err)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.Error() != "no validation errors" {
		t.Errorf("empty = %q", errs.Error())
	}

	errs.Add("stages", "at least one stage is required")
	if errs.Error() != "validation error on field 'stages': at least one stage is required" {
		t.Errorf("single = %q", errs.Error())
	}

	errs.Add("", "second")
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:\n") || !strings.Contains(msg, "  2. validation error: second") {
		t.Errorf("multiple = %q", msg)
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Target.BaseURL = ""
	cfg.Stages[0].Users = 0
	cfg.Stages[0].SpawnRate = -1

	var verrs *ValidationErrors
	if !errors.As(cfg.Validate(), &verrs) {
		t.Fatal("expected ValidationErrors")
	}
	if len(verrs.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(verrs.Errors), verrs)
	}
}
