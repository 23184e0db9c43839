package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/rate"
)

// ErrNoSink is returned when a runner is created without a request sink.
var ErrNoSink = errors.New("no request sink configured")

// DefaultGracePeriod bounds how long the drain phase waits for users to
// finish their in-flight requests.
const DefaultGracePeriod = 30 * time.Second

// Options configures a Runner.
type Options struct {
	// Sink receives every event. Required.
	Sink performance.RequestSink

	// Tasks is the weighted catalog; empty uses performance.DefaultCatalog.
	Tasks []performance.TaskDefinition

	// ThinkTime between requests (default 100-500ms)
	ThinkTime performance.ThinkTime

	// AcceptedStatus is the only status counted as success (default 202)
	AcceptedStatus int

	// GracePeriod for the drain phase (default 30s)
	GracePeriod time.Duration

	// ProgressInterval between progress log lines; zero disables them
	ProgressInterval time.Duration

	// Aggregator configures the per-stage metrics aggregator
	Aggregator metrics.AggregatorConfig

	// Seed for per-user random sources; zero uses the clock
	Seed int64

	Logger logrus.FieldLogger
}

// Runner runs stages. A Runner holds no per-stage state, so one Runner
// can run any number of stages one after the other.
type Runner struct {
	opts     Options
	selector *performance.Selector
	logger   logrus.FieldLogger
}

// NewRunner validates the options and creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}

	tasks := opts.Tasks
	if len(tasks) == 0 {
		tasks = performance.DefaultCatalog()
	}
	selector, err := performance.NewSelector(tasks)
	if err != nil {
		return nil, err
	}

	if opts.ThinkTime == (performance.ThinkTime{}) {
		opts.ThinkTime = performance.DefaultThinkTime()
	}
	if opts.AcceptedStatus == 0 {
		opts.AcceptedStatus = performance.DefaultAcceptedStatus
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Runner{
		opts:     opts,
		selector: selector,
		logger:   logger,
	}, nil
}

// Run executes one stage and returns its sealed statistics.
//
// Phases:
//   - ramp-up: users are spawned at spec.SpawnRate until spec.TargetUsers
//     are running. The number of running users never exceeds the target.
//   - steady: the target is held until spec.Duration has elapsed since
//     the stage started.
//   - drain: every user is told to stop and the runner waits up to the
//     grace period for in-flight requests to finish.
//
// Users still running when the grace period expires are abandoned: their
// requests are cancelled and whatever they would have recorded is
// discarded. The count is reported in Stats.AbandonedUsers.
//
// If ctx is cancelled the stage stops early, drains the same way, and
// returns the partial statistics together with an error.
func (r *Runner) Run(ctx context.Context, spec Spec) (metrics.Stats, error) {
	if err := spec.Validate(); err != nil {
		return metrics.Stats{}, err
	}

	logger := r.logger.WithField("stage", spec.Name)
	agg := metrics.NewAggregatorWithConfig(r.opts.Aggregator)

	// Requests run on a context that outlives the stop signal and ctx
	// itself; it is only cancelled to abandon users after the grace period.
	hardCtx, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hardCancel()

	scheduler, err := performance.NewVUScheduler(performance.SchedulerConfig{
		Selector:       r.selector,
		Sink:           r.opts.Sink,
		Recorder:       agg,
		Gauge:          agg,
		ThinkTime:      r.opts.ThinkTime,
		AcceptedStatus: r.opts.AcceptedStatus,
		Seed:           r.opts.Seed,
		Logger:         logger,
	})
	if err != nil {
		return metrics.Stats{}, err
	}

	stageCtx, cancel := context.WithTimeout(ctx, spec.Duration)
	defer cancel()

	agg.Start()
	agg.SetPhase(metrics.PhaseRampUp)

	logger.WithFields(logrus.Fields{
		"users":      spec.TargetUsers,
		"spawn_rate": spec.SpawnRate,
		"duration":   spec.Duration.String(),
	}).Info("stage started")

	stopProgress := r.startProgress(stageCtx, agg, logger)

	bucket := rate.NewLeakyBucket(spec.SpawnRate)
	for scheduler.SpawnedVUCount() < spec.TargetUsers {
		if err := bucket.Wait(stageCtx); err != nil {
			break
		}
		scheduler.SpawnVU(hardCtx)
	}

	if scheduler.SpawnedVUCount() == spec.TargetUsers && stageCtx.Err() == nil {
		agg.SetPhase(metrics.PhaseSteady)
		pacing := bucket.Stats()
		logger.WithFields(logrus.Fields{
			"users":        spec.TargetUsers,
			"spawn_wait":   pacing.TotalWaitTime.String(),
			"spawn_events": pacing.TotalEvents,
		}).Debug("ramp-up complete")
	}

	<-stageCtx.Done()
	stopProgress()

	agg.SetPhase(metrics.PhaseDrain)
	scheduler.StopAllVUs()
	abandoned := scheduler.WaitForAllVUs(r.opts.GracePeriod)

	stats := agg.Seal()
	hardCancel()
	stats.AbandonedUsers = abandoned

	fields := logrus.Fields{
		"requests":     stats.RequestCount,
		"failure_rate": stats.FailureRate(),
		"p50":          stats.Latency.P50.String(),
		"peak_users":   stats.PeakUsers,
	}
	if abandoned > 0 {
		fields["abandoned"] = abandoned
		logger.WithFields(fields).Warn("users abandoned after drain grace period; in-flight outcomes discarded")
	} else {
		logger.WithFields(fields).Info("stage finished")
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("stage %q interrupted: %w", spec.Name, err)
	}
	return stats, nil
}

// startProgress logs a snapshot every ProgressInterval until ctx is done.
// The returned function waits for the logger goroutine to exit.
func (r *Runner) startProgress(ctx context.Context, agg *metrics.Aggregator, logger logrus.FieldLogger) func() {
	if r.opts.ProgressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(r.opts.ProgressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := agg.Snapshot()
				logger.WithFields(logrus.Fields{
					"phase":        agg.Phase(),
					"users":        agg.ActiveUsers(),
					"requests":     s.RequestCount,
					"failure_rate": s.FailureRate(),
					"p50":          s.Latency.P50.String(),
					"rps":          s.Throughput(),
				}).Info("stage progress")
			}
		}
	}()

	return func() { <-done }
}
