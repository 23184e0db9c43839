// Package performance provides the virtual user engine: weighted task
// selection, event payload generation, the per-user request loop and the
// scheduler that owns the users of a stage.
package performance

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	// ErrEmptyCatalog is returned when a selector is built without tasks.
	ErrEmptyCatalog = errors.New("task catalog is empty")

	// ErrInvalidWeight is returned when a task has a non-positive weight.
	ErrInvalidWeight = errors.New("task weight must be positive")
)

// Event categories known to the default payload builders.
const (
	CategoryClick    = "click"
	CategoryView     = "view"
	CategoryPurchase = "purchase"
	CategoryLogin    = "login"
	CategorySignup   = "signup"
)

// PayloadBuilder returns the category specific part of an event body.
// Builders must not block and may be called concurrently.
type PayloadBuilder func(uctx UserContext, rng *rand.Rand) map[string]interface{}

// TaskDefinition describes one kind of request a virtual user may issue.
// Tasks are defined once at startup and never modified.
type TaskDefinition struct {
	// Category is the event category, reported as event_type.
	Category string `json:"category" yaml:"category"`

	// Weight is the relative selection frequency. A task with weight w is
	// picked with probability w / sum(weights).
	Weight int `json:"weight" yaml:"weight"`

	// Priority is sent with every event of this category.
	Priority int `json:"priority" yaml:"priority"`

	// Build produces the category payload. Nil falls back to the builder
	// registered for Category (or an empty payload).
	Build PayloadBuilder `json:"-" yaml:"-"`
}

// DefaultCatalog returns the standard event mix: clicks five times as
// often as purchases, logins three times as often.
func DefaultCatalog() []TaskDefinition {
	return []TaskDefinition{
		{Category: CategoryClick, Weight: 5, Priority: 1},
		{Category: CategoryLogin, Weight: 3, Priority: 5},
		{Category: CategoryPurchase, Weight: 1, Priority: 9},
	}
}

// Selector picks tasks at random in proportion to their weights.
//
// A Selector holds no mutable state after construction. Randomness comes
// from the *rand.Rand passed to Select, which each virtual user owns, so
// concurrent callers never share a generator.
type Selector struct {
	tasks      []TaskDefinition
	cumulative []int
	total      int
}

// NewSelector validates the catalog and prepares it for selection.
func NewSelector(tasks []TaskDefinition) (*Selector, error) {
	if len(tasks) == 0 {
		return nil, ErrEmptyCatalog
	}

	s := &Selector{
		tasks:      make([]TaskDefinition, len(tasks)),
		cumulative: make([]int, len(tasks)),
	}
	copy(s.tasks, tasks)

	for i, task := range s.tasks {
		if task.Weight <= 0 {
			return nil, fmt.Errorf("task %d (%s): %w", i, task.Category, ErrInvalidWeight)
		}
		if task.Category == "" {
			return nil, fmt.Errorf("task %d: category is required", i)
		}
		if s.tasks[i].Build == nil {
			s.tasks[i].Build = BuilderFor(task.Category)
		}
		s.total += task.Weight
		s.cumulative[i] = s.total
	}

	return s, nil
}

// Select returns a task chosen with probability weight / total weight.
func (s *Selector) Select(rng *rand.Rand) TaskDefinition {
	if len(s.tasks) == 1 {
		return s.tasks[0]
	}
	n := rng.Intn(s.total)
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > n
	})
	return s.tasks[i]
}

// TotalWeight returns the sum of all task weights.
func (s *Selector) TotalWeight() int {
	return s.total
}
