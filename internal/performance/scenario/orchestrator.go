// Package scenario runs an ordered list of stages and certifies each one
// against the SLA thresholds.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

// DefaultPause is the stabilization pause between two stages.
const DefaultPause = 10 * time.Second

// PreflightStage names the pseudo-stage reported when preflight fails.
const PreflightStage = "preflight"

// StageRunner runs a single stage to completion.
type StageRunner interface {
	Run(ctx context.Context, spec stage.Spec) (metrics.Stats, error)
}

// Preflight gates the run; a non-nil error means no stage may start.
type Preflight interface {
	Check(ctx context.Context) error
}

// MetricsFetcher returns the target's own metrics. It is best effort:
// an empty string means nothing could be fetched.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context) string
}

// Hooks are called by the orchestrator around each stage. Either may be nil.
type Hooks struct {
	OnStageStart func(index int, spec stage.Spec)
	OnStageEnd   func(index int, result StageResult)
}

// Options configures an Orchestrator.
type Options struct {
	// Pause between stages (default 10s). Negative disables the pause.
	Pause time.Duration

	// Thresholds every stage is checked against (default sla.Default()).
	Thresholds *sla.Thresholds

	Hooks Hooks

	// Preflight runs once before the first stage when set.
	Preflight Preflight

	// Metrics is sampled before each stage when set.
	Metrics MetricsFetcher

	Logger logrus.FieldLogger
}

// FatalError means the scenario could not be run to completion. It is
// distinct from an SLA violation, which only marks a stage as failed.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// Orchestrator runs stages strictly one after another.
type Orchestrator struct {
	runner     StageRunner
	pause      time.Duration
	thresholds sla.Thresholds
	hooks      Hooks
	preflight  Preflight
	fetcher    MetricsFetcher
	logger     logrus.FieldLogger
}

// NewOrchestrator creates an orchestrator around runner.
func NewOrchestrator(runner StageRunner, opts Options) *Orchestrator {
	pause := opts.Pause
	switch {
	case pause == 0:
		pause = DefaultPause
	case pause < 0:
		pause = 0
	}

	thresholds := sla.Default()
	if opts.Thresholds != nil {
		thresholds = *opts.Thresholds
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Orchestrator{
		runner:     runner,
		pause:      pause,
		thresholds: thresholds,
		hooks:      opts.Hooks,
		preflight:  opts.Preflight,
		fetcher:    opts.Metrics,
		logger:     logger,
	}
}

// RunAll runs every stage in order and returns the scenario report.
//
// A stage that violates its SLA does not stop the run; it only makes
// Report.Success false. The returned error is non-nil only for fatal
// conditions (invalid stages, failed preflight, a stage that could not run
// or an interrupted run) and is then a *FatalError. Stages that completed
// before a fatal error are still present in the returned report.
func (o *Orchestrator) RunAll(ctx context.Context, stages []stage.Spec) (*Report, error) {
	report := &Report{
		Timestamp:  time.Now(),
		Success:    true,
		Thresholds: o.thresholds,
	}

	if len(stages) == 0 {
		report.Success = false
		return report, &FatalError{Stage: PreflightStage, Err: errors.New("no stages configured")}
	}
	for _, spec := range stages {
		if err := spec.Validate(); err != nil {
			report.Success = false
			return report, &FatalError{Stage: spec.Name, Err: err}
		}
	}

	if o.preflight != nil {
		if err := o.preflight.Check(ctx); err != nil {
			report.Success = false
			return report, &FatalError{Stage: PreflightStage, Err: err}
		}
	}

	for i, spec := range stages {
		o.sampleMetrics(ctx, spec)

		if o.hooks.OnStageStart != nil {
			o.hooks.OnStageStart(i, spec)
		}

		stats, err := o.runner.Run(ctx, spec)
		if err != nil {
			report.Success = false
			return report, &FatalError{Stage: spec.Name, Err: err}
		}

		checks := sla.Check(stats, o.thresholds)
		result := StageResult{
			Spec:   spec,
			Stats:  stats,
			Passed: len(sla.Violations(checks)) == 0,
			Checks: checks,
		}
		report.Stages = append(report.Stages, result)
		if !result.Passed {
			report.Success = false
		}

		o.logResult(result)

		if o.hooks.OnStageEnd != nil {
			o.hooks.OnStageEnd(i, result)
		}

		if i < len(stages)-1 && o.pause > 0 {
			o.logger.WithField("pause", o.pause.String()).Info("waiting for system stabilization")
			if err := sleep(ctx, o.pause); err != nil {
				report.Success = false
				return report, &FatalError{Stage: stages[i+1].Name, Err: err}
			}
		}
	}

	report.Duration = time.Since(report.Timestamp)
	return report, nil
}

func (o *Orchestrator) sampleMetrics(ctx context.Context, spec stage.Spec) {
	if o.fetcher == nil {
		return
	}
	if body := o.fetcher.FetchMetrics(ctx); body != "" {
		o.logger.WithFields(logrus.Fields{
			"stage": spec.Name,
			"bytes": len(body),
		}).Debug("target metrics before stage")
	}
}

func (o *Orchestrator) logResult(result StageResult) {
	fields := logrus.Fields{
		"stage":        result.Spec.Name,
		"requests":     result.Stats.RequestCount,
		"failure_rate": result.Stats.FailureRate(),
		"p50":          result.Stats.Latency.P50.String(),
		"rps":          result.Stats.Throughput(),
	}

	if result.Passed {
		o.logger.WithFields(fields).Info("SLA passed")
		return
	}
	for _, v := range sla.Violations(result.Checks) {
		o.logger.WithFields(fields).WithField("metric", v.Metric).Warn("SLA violation: " + v.Message)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
