package metrics

import (
	"time"
)

// Phase identifies where a stage currently is in its lifecycle.
type Phase string

const (
	// PhaseInit is the phase before any user has been spawned.
	PhaseInit Phase = "init"
	// PhaseRampUp is the phase in which users are being spawned.
	PhaseRampUp Phase = "ramp-up"
	// PhaseSteady is the phase in which the target user count is held.
	PhaseSteady Phase = "steady"
	// PhaseDrain is the phase after the stop signal, while users finish.
	PhaseDrain Phase = "drain"
	// PhaseDone marks a sealed stage.
	PhaseDone Phase = "done"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// RequestOutcome is the result of one request issued by a virtual user.
type RequestOutcome struct {
	// Category is the event category of the task that produced the request.
	Category string `json:"category"`

	// StatusCode is the response status, or 0 when no response was received.
	StatusCode int `json:"statusCode,omitempty"`

	// Latency is the wall time between issuing the request and observing the result.
	Latency time.Duration `json:"latency"`

	// Succeeded is true only when the response carried the accepted status.
	Succeeded bool `json:"succeeded"`

	// ErrorDetail describes a failure (transport error or unexpected status).
	ErrorDetail string `json:"errorDetail,omitempty"`

	// Timestamp is when the request completed.
	Timestamp time.Time `json:"timestamp"`
}

// HasStatus reports whether a response status was observed.
func (o RequestOutcome) HasStatus() bool {
	return o.StatusCode != 0
}

// LatencyMs returns the latency in fractional milliseconds.
func (o RequestOutcome) LatencyMs() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// Stats is a consistent, read-only view of a stage's aggregated outcomes.
//
// A Stats value never aliases the aggregator's internal state; maps are
// copied when the snapshot is taken.
type Stats struct {
	RequestCount int64        `json:"requestCount"`
	FailureCount int64        `json:"failureCount"`
	Latency      LatencyStats `json:"latency"`

	// Categories breaks down counts and latency per event category.
	Categories map[string]CategoryStats `json:"categories,omitempty"`

	// StatusCodes counts responses by status (transport errors are not included).
	StatusCodes map[int]int64 `json:"statusCodes,omitempty"`

	// Errors counts failure details. Only the first MaxDistinctErrors details
	// are tracked individually; the rest are folded into OtherErrors.
	Errors      map[string]int64 `json:"errors,omitempty"`
	OtherErrors int64            `json:"otherErrors,omitempty"`

	// AbandonedUsers counts users that did not stop within the drain grace period.
	// A non-zero value means the statistics may be missing in-flight outcomes.
	AbandonedUsers int `json:"abandonedUsers,omitempty"`

	// PeakUsers is the highest number of concurrently active users observed.
	PeakUsers int `json:"peakUsers"`

	Phases []PhaseChange `json:"phases,omitempty"`

	StageStart time.Time `json:"stageStart"`
	StageEnd   time.Time `json:"stageEnd"`
}

// CategoryStats contains per-category counts and latency.
type CategoryStats struct {
	RequestCount int64        `json:"requestCount"`
	FailureCount int64        `json:"failureCount"`
	Latency      LatencyStats `json:"latency"`
}

// FailureRate returns failures / requests, or 0 when nothing was recorded.
func (s Stats) FailureRate() float64 {
	return failureRate(s.FailureCount, s.RequestCount)
}

// FailureRate returns failures / requests for the category.
func (c CategoryStats) FailureRate() float64 {
	return failureRate(c.FailureCount, c.RequestCount)
}

func failureRate(failures, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	return float64(failures) / float64(requests)
}

// Duration returns the stage wall-clock duration. For a stage that has not
// been sealed yet it is measured up to now.
func (s Stats) Duration() time.Duration {
	if s.StageStart.IsZero() {
		return 0
	}
	end := s.StageEnd
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StageStart)
}

// Throughput returns requests per second over the stage wall-clock duration.
func (s Stats) Throughput() float64 {
	d := s.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(s.RequestCount) / d
}

// MedianLatencyMs returns the p50 latency in milliseconds.
func (s Stats) MedianLatencyMs() float64 {
	return Ms(s.Latency.P50)
}

// HasDataCaveat reports whether the stage lost outcomes during drain.
func (s Stats) HasDataCaveat() bool {
	return s.AbandonedUsers > 0
}

// Ms converts a duration to fractional milliseconds.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
