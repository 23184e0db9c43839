// Package metrics aggregates request outcomes into per-stage statistics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator is the sink for request outcomes of a single stage.
//
// Latency is tracked with HDR histograms, which keep memory bounded no
// matter how many outcomes are recorded and give monotonic percentiles.
//
// # Thread Safety
//
// Record and Snapshot may be called concurrently from any number of
// goroutines. All counters and histograms share one mutex so that a
// snapshot never observes a partially applied Record. The critical section
// is a handful of map and histogram updates and never blocks on I/O.
type Aggregator struct {
	mu sync.Mutex

	// Range: 1 microsecond to 1 hour, 3 significant figures by default
	latencyHist *hdrhistogram.Histogram
	categories  map[string]*categoryAggregate
	statusCodes map[int]int64
	errors      map[string]int64
	otherErrors int64

	requests int64
	failures int64
	sealed   bool

	currentPhase Phase
	phaseHistory []PhaseChange

	startTime time.Time
	endTime   time.Time

	// User gauges are updated by the scheduler outside the outcome path.
	activeUsers atomic.Int32
	peakUsers   atomic.Int32

	config AggregatorConfig
}

type categoryAggregate struct {
	hist     *hdrhistogram.Histogram
	requests int64
	failures int64
}

// AggregatorConfig contains configuration for the aggregator.
type AggregatorConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// MaxDistinctErrors bounds how many distinct error details are kept (default: 50)
	MaxDistinctErrors int
}

// DefaultAggregatorConfig returns the default configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		HistogramMin:      1,
		HistogramMax:      3600000000,
		HistogramSigFigs:  3,
		MaxDistinctErrors: 50,
	}
}

// NewAggregator creates an aggregator with default configuration.
func NewAggregator() *Aggregator {
	return NewAggregatorWithConfig(DefaultAggregatorConfig())
}

// NewAggregatorWithConfig creates an aggregator with custom configuration.
func NewAggregatorWithConfig(config AggregatorConfig) *Aggregator {
	defaults := DefaultAggregatorConfig()
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.MaxDistinctErrors <= 0 {
		config.MaxDistinctErrors = defaults.MaxDistinctErrors
	}

	return &Aggregator{
		latencyHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		categories:   make(map[string]*categoryAggregate),
		statusCodes:  make(map[int]int64),
		errors:       make(map[string]int64),
		currentPhase: PhaseInit,
		config:       config,
	}
}

// Start marks the beginning of the stage window. Calling it more than once
// has no effect.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.startTime.IsZero() {
		a.startTime = time.Now()
	}
}

// Record ingests one outcome.
//
// It returns false when the aggregator has already been sealed; such
// outcomes are dropped and do not affect any statistic.
func (a *Aggregator) Record(outcome RequestOutcome) bool {
	latencyMicros := a.clamp(outcome.Latency.Microseconds())

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return false
	}

	// HDR histogram RecordValue is not thread-safe; a.mu covers it.
	_ = a.latencyHist.RecordValue(latencyMicros)

	a.requests++
	if !outcome.Succeeded {
		a.failures++
		a.recordError(outcome.ErrorDetail)
	}

	if outcome.HasStatus() {
		a.statusCodes[outcome.StatusCode]++
	}

	if outcome.Category != "" {
		cat, ok := a.categories[outcome.Category]
		if !ok {
			cat = &categoryAggregate{
				hist: hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
			}
			a.categories[outcome.Category] = cat
		}
		_ = cat.hist.RecordValue(latencyMicros)
		cat.requests++
		if !outcome.Succeeded {
			cat.failures++
		}
	}

	return true
}

// recordError must be called with a.mu held.
func (a *Aggregator) recordError(detail string) {
	if detail == "" {
		detail = "unknown error"
	}
	if _, ok := a.errors[detail]; ok || len(a.errors) < a.config.MaxDistinctErrors {
		a.errors[detail]++
		return
	}
	a.otherErrors++
}

func (a *Aggregator) clamp(micros int64) int64 {
	if micros < a.config.HistogramMin {
		return a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		return a.config.HistogramMax
	}
	return micros
}

// SetPhase records a phase transition. Repeating the current phase is a no-op.
func (a *Aggregator) SetPhase(phase Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setPhaseLocked(phase)
}

func (a *Aggregator) setPhaseLocked(phase Phase) {
	if a.currentPhase == phase {
		return
	}
	a.currentPhase = phase
	a.phaseHistory = append(a.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  a.requests,
	})
}

// Phase returns the current phase.
func (a *Aggregator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentPhase
}

// SetActiveUsers updates the active user gauge and the peak watermark.
func (a *Aggregator) SetActiveUsers(count int) {
	n := int32(count)
	a.activeUsers.Store(n)
	for {
		peak := a.peakUsers.Load()
		if n <= peak || a.peakUsers.CompareAndSwap(peak, n) {
			return
		}
	}
}

// ActiveUsers returns the last reported active user count.
func (a *Aggregator) ActiveUsers() int {
	return int(a.activeUsers.Load())
}

// Snapshot returns a consistent point-in-time view of the aggregated outcomes.
func (a *Aggregator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Seal closes the stage window and returns the final statistics.
//
// Outcomes recorded after Seal are discarded. Sealing twice returns the
// same window end.
func (a *Aggregator) Seal() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.sealed {
		a.sealed = true
		a.endTime = time.Now()
		a.setPhaseLocked(PhaseDone)
	}
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Stats {
	stats := Stats{
		RequestCount: a.requests,
		FailureCount: a.failures,
		Latency:      latencyStats(a.latencyHist),
		OtherErrors:  a.otherErrors,
		PeakUsers:    int(a.peakUsers.Load()),
		StageStart:   a.startTime,
		StageEnd:     a.endTime,
	}

	if len(a.categories) > 0 {
		stats.Categories = make(map[string]CategoryStats, len(a.categories))
		for name, cat := range a.categories {
			stats.Categories[name] = CategoryStats{
				RequestCount: cat.requests,
				FailureCount: cat.failures,
				Latency:      latencyStats(cat.hist),
			}
		}
	}

	if len(a.statusCodes) > 0 {
		stats.StatusCodes = make(map[int]int64, len(a.statusCodes))
		for code, n := range a.statusCodes {
			stats.StatusCodes[code] = n
		}
	}

	if len(a.errors) > 0 {
		stats.Errors = make(map[string]int64, len(a.errors))
		for detail, n := range a.errors {
			stats.Errors[detail] = n
		}
	}

	if len(a.phaseHistory) > 0 {
		stats.Phases = make([]PhaseChange, len(a.phaseHistory))
		copy(stats.Phases, a.phaseHistory)
	}

	return stats
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}
