package sla

import (
	"reflect"
	"testing"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

func statsWith(requests, failures int64, p50 time.Duration) metrics.Stats {
	return metrics.Stats{
		RequestCount: requests,
		FailureCount: failures,
		Latency:      metrics.LatencyStats{P50: p50, Count: requests},
		StatusCodes:  map[int]int64{202: requests - failures},
	}
}

func TestDefault(t *testing.T) {
	th := Default()
	if th.MaxFailureRate != 0.01 {
		t.Errorf("MaxFailureRate = %v, want 0.01", th.MaxFailureRate)
	}
	if th.MaxMedianLatency != 500*time.Millisecond {
		t.Errorf("MaxMedianLatency = %v, want 500ms", th.MaxMedianLatency)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		stats metrics.Stats
		want  bool
	}{
		{"all good", statsWith(1000, 0, 50*time.Millisecond), true},
		{"failure rate at limit", statsWith(1000, 10, 50*time.Millisecond), true},
		{"failure rate over limit", statsWith(1000, 11, 50*time.Millisecond), false},
		{"median at limit", statsWith(1000, 0, 500*time.Millisecond), true},
		{"median over limit", statsWith(1000, 0, 501*time.Millisecond), false},
		{"everything failed", statsWith(100, 100, 10*time.Millisecond), false},
		{"no requests", metrics.Stats{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.stats, Default()); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	stats := statsWith(200, 3, 120*time.Millisecond)
	before := statsWith(200, 3, 120*time.Millisecond)
	th := Default()

	first := Evaluate(stats, th)
	second := Evaluate(stats, th)

	if first != second {
		t.Errorf("Evaluate() not deterministic: %v then %v", first, second)
	}
	if !reflect.DeepEqual(stats, before) {
		t.Errorf("Evaluate() modified stats: %+v", stats)
	}
}

func TestCheck_Messages(t *testing.T) {
	results := Check(statsWith(100, 50, 800*time.Millisecond), Default())

	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}

	violations := Violations(results)
	if len(violations) != 2 {
		t.Fatalf("len(violations) = %d, want 2", len(violations))
	}

	if results[0].Metric != MetricFailureRate || results[0].Value != "0.5000" {
		t.Errorf("failure result = %+v", results[0])
	}
	if results[0].Message != "failure rate 50.00% exceeds 1.00%" {
		t.Errorf("failure message = %q", results[0].Message)
	}
	if results[1].Metric != MetricMedianLatency || results[1].Message != "median latency 800ms exceeds 500ms" {
		t.Errorf("latency result = %+v", results[1])
	}
}

func TestCheck_CustomThresholds(t *testing.T) {
	th := Thresholds{MaxFailureRate: 0.5, MaxMedianLatency: time.Second}
	stats := statsWith(10, 4, 900*time.Millisecond)

	if !Evaluate(stats, th) {
		t.Error("Evaluate() = false with relaxed thresholds")
	}
	if len(Violations(Check(stats, th))) != 0 {
		t.Error("expected no violations")
	}
	if Evaluate(stats, Default()) {
		t.Error("Evaluate() = true with default thresholds")
	}
}

func TestCheck_NoRequestsFails(t *testing.T) {
	results := Check(metrics.Stats{}, Default())

	violations := Violations(results)
	if len(violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", violations)
	}
	if violations[0].Metric != MetricRequests || violations[0].Message != "no requests recorded" {
		t.Errorf("violation = %+v", violations[0])
	}
}

func TestCheck_AbandonedUsersFail(t *testing.T) {
	stats := statsWith(1000, 0, 50*time.Millisecond)
	stats.AbandonedUsers = 3

	if Evaluate(stats, Default()) {
		t.Fatal("Evaluate() = true with abandoned users")
	}

	violations := Violations(Check(stats, Default()))
	if len(violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", violations)
	}
	if violations[0].Metric != MetricAbandonedUsers || violations[0].Value != "3" {
		t.Errorf("violation = %+v", violations[0])
	}
	if violations[0].Message != "3 users did not finish within the drain grace period" {
		t.Errorf("message = %q", violations[0].Message)
	}
}
