package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/scenario"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
)

// TimestampLayout is the layout of FinalReport.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// FinalReport is the document written to final_report.json.
type FinalReport struct {
	Timestamp  string           `json:"timestamp"`
	Success    bool             `json:"success"`
	Duration   string           `json:"duration"`
	Thresholds ThresholdSummary `json:"thresholds"`
	Stages     []StageSummary   `json:"stages"`
}

// ThresholdSummary is the SLA a report was certified against.
type ThresholdSummary struct {
	MaxFailureRate     float64 `json:"max_failure_rate"`
	MaxMedianLatencyMs float64 `json:"max_median_latency_ms"`
}

// StageSummary is one stage of the final report.
type StageSummary struct {
	Name           string       `json:"name"`
	Target         string       `json:"target"`
	Passed         bool         `json:"passed"`
	Requests       int64        `json:"requests"`
	Failures       int64        `json:"failures"`
	FailureRate    float64      `json:"failure_rate"`
	MedianMs       float64      `json:"median_ms"`
	P95Ms          float64      `json:"p95_ms"`
	P99Ms          float64      `json:"p99_ms"`
	RequestsPerSec float64      `json:"requests_per_sec"`
	PeakUsers      int          `json:"peak_users"`
	AbandonedUsers int          `json:"abandoned_users,omitempty"`
	Violations     []sla.Result `json:"violations,omitempty"`
}

// NewFinalReport summarizes a scenario report.
func NewFinalReport(report *scenario.Report) *FinalReport {
	final := &FinalReport{
		Timestamp:  report.Timestamp.Format(TimestampLayout),
		Success:    report.Success,
		Duration:   report.Duration.Round(time.Millisecond).String(),
		Thresholds: ThresholdSummary{
			MaxFailureRate:     report.Thresholds.MaxFailureRate,
			MaxMedianLatencyMs: metrics.Ms(report.Thresholds.MaxMedianLatency),
		},
		Stages:     make([]StageSummary, 0, len(report.Stages)),
	}

	for _, result := range report.Stages {
		s := result.Stats
		final.Stages = append(final.Stages, StageSummary{
			Name:           result.Spec.Name,
			Target:         result.Spec.Target(),
			Passed:         result.Passed,
			Requests:       s.RequestCount,
			Failures:       s.FailureCount,
			FailureRate:    s.FailureRate(),
			MedianMs:       metrics.Ms(s.Latency.P50),
			P95Ms:          metrics.Ms(s.Latency.P95),
			P99Ms:          metrics.Ms(s.Latency.P99),
			RequestsPerSec: s.Throughput(),
			PeakUsers:      s.PeakUsers,
			AbandonedUsers: s.AbandonedUsers,
			Violations:     sla.Violations(result.Checks),
		})
	}
	return final
}

// WriteJSON writes the final report as indented JSON.
func WriteJSON(w io.Writer, report *scenario.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewFinalReport(report))
}

// WriteJSONFile writes the final report to path.
func WriteJSONFile(report *scenario.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := WriteJSON(f, report); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return f.Close()
}
