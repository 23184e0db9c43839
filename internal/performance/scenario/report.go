package scenario

import (
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

// Report is the outcome of a scenario run. It is built once by RunAll
// and not modified afterwards.
type Report struct {
	Timestamp  time.Time      `json:"timestamp"`
	Success    bool           `json:"success"`
	Duration   time.Duration  `json:"duration"`
	Thresholds sla.Thresholds `json:"thresholds"`
	Stages     []StageResult  `json:"stages"`
}

// StageResult pairs a stage with its statistics and SLA verdict.
type StageResult struct {
	Spec   stage.Spec    `json:"spec"`
	Stats  metrics.Stats `json:"stats"`
	Passed bool          `json:"passed"`
	Checks []sla.Result  `json:"checks,omitempty"`
}

// FailedStages returns the names of stages that violated the SLA.
func (r *Report) FailedStages() []string {
	var names []string
	for _, s := range r.Stages {
		if !s.Passed {
			names = append(names, s.Spec.Name)
		}
	}
	return names
}

// TotalRequests sums the request counts of all stages.
func (r *Report) TotalRequests() int64 {
	var total int64
	for _, s := range r.Stages {
		total += s.Stats.RequestCount
	}
	return total
}
