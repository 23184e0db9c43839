// Package stage runs one time-boxed load stage: it ramps virtual users up
// at a spawn rate, holds them until the stage duration elapses, then stops
// them and drains within a bounded grace period.
package stage

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidSpec is returned for a stage with a non-positive target,
// spawn rate or duration.
var ErrInvalidSpec = errors.New("invalid stage spec")

// Spec defines a stage.
type Spec struct {
	Name        string        `json:"name" yaml:"name"`
	TargetUsers int           `json:"targetUsers" yaml:"targetUsers"`
	SpawnRate   float64       `json:"spawnRate" yaml:"spawnRate"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Validate checks that the stage can be run.
func (s Spec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	case s.TargetUsers <= 0:
		return fmt.Errorf("%w: stage %q: target users must be positive, got %d", ErrInvalidSpec, s.Name, s.TargetUsers)
	case s.SpawnRate <= 0:
		return fmt.Errorf("%w: stage %q: spawn rate must be positive, got %v", ErrInvalidSpec, s.Name, s.SpawnRate)
	case s.Duration <= 0:
		return fmt.Errorf("%w: stage %q: duration must be positive, got %v", ErrInvalidSpec, s.Name, s.Duration)
	}
	return nil
}

// Target describes the load level, e.g. "50 users, 5/s spawn".
func (s Spec) Target() string {
	return fmt.Sprintf("%d users, %s/s spawn", s.TargetUsers, strconv.FormatFloat(s.SpawnRate, 'f', -1, 64))
}

// RampDuration estimates how long spawning the target takes.
func (s Spec) RampDuration() time.Duration {
	if s.SpawnRate <= 0 || s.TargetUsers <= 1 {
		return 0
	}
	return time.Duration(float64(s.TargetUsers-1) / s.SpawnRate * float64(time.Second))
}
