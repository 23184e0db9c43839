// Package sla certifies a finished stage against pass/fail thresholds.
package sla

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// Default threshold values.
const (
	DefaultMaxFailureRate   = 0.01
	DefaultMaxMedianLatency = 500 * time.Millisecond
)

// Metric names used in threshold results.
const (
	MetricFailureRate    = "failure_rate"
	MetricMedianLatency  = "median_latency"
	MetricRequests       = "requests"
	MetricAbandonedUsers = "abandoned_users"
)

// Thresholds are the limits a stage must stay within to pass.
type Thresholds struct {
	// MaxFailureRate is the highest acceptable failures / requests.
	MaxFailureRate float64 `json:"maxFailureRate" yaml:"maxFailureRate"`

	// MaxMedianLatency is the highest acceptable p50 latency.
	MaxMedianLatency time.Duration `json:"maxMedianLatency" yaml:"maxMedianLatency"`
}

// Default returns a 1% failure rate and a 500ms median latency.
func Default() Thresholds {
	return Thresholds{
		MaxFailureRate:   DefaultMaxFailureRate,
		MaxMedianLatency: DefaultMaxMedianLatency,
	}
}

// Result contains the outcome of checking one threshold.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Evaluate reports whether stats meet every threshold.
func Evaluate(stats metrics.Stats, th Thresholds) bool {
	for _, r := range Check(stats, th) {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Check evaluates each threshold and explains any violation.
// It reads stats only.
//
// Besides the configured thresholds, a stage fails when it recorded no
// requests or when users were abandoned at drain.
func Check(stats metrics.Stats, th Thresholds) []Result {
	failureRate := stats.FailureRate()
	median := stats.Latency.P50

	results := []Result{
		{
			Metric:     MetricFailureRate,
			Expression: fmt.Sprintf("rate <= %.4f", th.MaxFailureRate),
			Passed:     failureRate <= th.MaxFailureRate,
			Value:      fmt.Sprintf("%.4f", failureRate),
		},
		{
			Metric:     MetricMedianLatency,
			Expression: fmt.Sprintf("p50 <= %s", th.MaxMedianLatency),
			Passed:     median <= th.MaxMedianLatency,
			Value:      median.String(),
		},
		{
			Metric:     MetricRequests,
			Expression: "count > 0",
			Passed:     stats.RequestCount > 0,
			Value:      fmt.Sprintf("%d", stats.RequestCount),
		},
		{
			Metric:     MetricAbandonedUsers,
			Expression: "count == 0",
			Passed:     stats.AbandonedUsers == 0,
			Value:      fmt.Sprintf("%d", stats.AbandonedUsers),
		},
	}

	if !results[0].Passed {
		results[0].Message = fmt.Sprintf("failure rate %.2f%% exceeds %.2f%%", failureRate*100, th.MaxFailureRate*100)
	}
	if !results[1].Passed {
		results[1].Message = fmt.Sprintf("median latency %.0fms exceeds %.0fms",
			metrics.Ms(median), metrics.Ms(th.MaxMedianLatency))
	}
	if !results[2].Passed {
		results[2].Message = "no requests recorded"
	}
	if !results[3].Passed {
		results[3].Message = fmt.Sprintf("%d users did not finish within the drain grace period", stats.AbandonedUsers)
	}

	return results
}

// Violations returns the failed results only.
func Violations(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
