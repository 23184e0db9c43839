package stage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
)

type sinkFunc func(ctx context.Context, p *performance.Payload) (int, error)

func (f sinkFunc) Send(ctx context.Context, p *performance.Payload) (int, error) {
	return f(ctx, p)
}

func acceptingSink(delay time.Duration) performance.RequestSink {
	return sinkFunc(func(ctx context.Context, _ *performance.Payload) (int, error) {
		if delay > 0 {
			time.Sleep(delay)
		}
		return 202, nil
	})
}

func fastOptions(sink performance.RequestSink) Options {
	logger, _ := test.NewNullLogger()
	return Options{
		Sink:        sink,
		ThinkTime:   performance.ThinkTime{Min: time.Millisecond, Max: 5 * time.Millisecond},
		GracePeriod: time.Second,
		Seed:        1,
		Logger:      logger,
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"valid", Spec{Name: "Low Load", TargetUsers: 50, SpawnRate: 5, Duration: 30 * time.Second}, false},
		{"missing name", Spec{TargetUsers: 1, SpawnRate: 1, Duration: time.Second}, true},
		{"zero users", Spec{Name: "x", TargetUsers: 0, SpawnRate: 1, Duration: time.Second}, true},
		{"zero spawn rate", Spec{Name: "x", TargetUsers: 1, SpawnRate: 0, Duration: time.Second}, true},
		{"negative duration", Spec{Name: "x", TargetUsers: 1, SpawnRate: 1, Duration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSpec_Target(t *testing.T) {
	assert.Equal(t, "50 users, 5/s spawn", Spec{TargetUsers: 50, SpawnRate: 5}.Target())
	assert.Equal(t, "10 users, 2.5/s spawn", Spec{TargetUsers: 10, SpawnRate: 2.5}.Target())
}

func TestSpec_RampDuration(t *testing.T) {
	assert.Equal(t, 9*time.Second+800*time.Millisecond, Spec{TargetUsers: 50, SpawnRate: 5}.RampDuration())
	assert.Equal(t, time.Duration(0), Spec{TargetUsers: 1, SpawnRate: 5}.RampDuration())
}

func TestNewRunner_Errors(t *testing.T) {
	_, err := NewRunner(Options{})
	assert.ErrorIs(t, err, ErrNoSink)

	_, err = NewRunner(Options{
		Sink:  acceptingSink(0),
		Tasks: []performance.TaskDefinition{{Category: "click", Weight: 0}},
	})
	assert.ErrorIs(t, err, performance.ErrInvalidWeight)
}

func TestNewRunner_Defaults(t *testing.T) {
	r, err := NewRunner(Options{Sink: acceptingSink(0)})
	require.NoError(t, err)

	assert.Equal(t, DefaultGracePeriod, r.opts.GracePeriod)
	assert.Equal(t, performance.DefaultThinkTime(), r.opts.ThinkTime)
	assert.Equal(t, 202, r.opts.AcceptedStatus)
	assert.Equal(t, 9, r.selector.TotalWeight())
}

func TestRunner_Run_InvalidSpec(t *testing.T) {
	r, err := NewRunner(fastOptions(acceptingSink(0)))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), Spec{Name: "bad"})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestRunner_Run_Phases(t *testing.T) {
	r, err := NewRunner(fastOptions(acceptingSink(time.Millisecond)))
	require.NoError(t, err)

	start := time.Now()
	stats, err := r.Run(context.Background(), Spec{
		Name:        "short",
		TargetUsers: 5,
		SpawnRate:   100,
		Duration:    300 * time.Millisecond,
	})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Greater(t, stats.RequestCount, int64(0))
	assert.Equal(t, int64(0), stats.FailureCount)
	assert.Equal(t, 5, stats.PeakUsers)
	assert.Equal(t, 0, stats.AbandonedUsers)
	assert.False(t, stats.HasDataCaveat())
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)

	var phases []metrics.Phase
	for _, p := range stats.Phases {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []metrics.Phase{
		metrics.PhaseRampUp,
		metrics.PhaseSteady,
		metrics.PhaseDrain,
		metrics.PhaseDone,
	}, phases)
}

// concurrencyTracker counts the distinct users that reached the sink.
type concurrencyTracker struct {
	mu      sync.Mutex
	users   map[string]bool
	maxSeen int
}

func (c *concurrencyTracker) Send(ctx context.Context, p *performance.Payload) (int, error) {
	c.mu.Lock()
	if c.users == nil {
		c.users = make(map[string]bool)
	}
	c.users[p.UserID] = true
	if len(c.users) > c.maxSeen {
		c.maxSeen = len(c.users)
	}
	c.mu.Unlock()

	time.Sleep(2 * time.Millisecond)
	return 202, nil
}

func TestRunner_Run_NeverExceedsTarget(t *testing.T) {
	tracker := &concurrencyTracker{}
	r, err := NewRunner(fastOptions(tracker))
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), Spec{
		Name:        "burst",
		TargetUsers: 20,
		SpawnRate:   1000,
		Duration:    300 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, stats.PeakUsers, 20)
	assert.LessOrEqual(t, tracker.maxSeen, 20)
	assert.Equal(t, 20, stats.PeakUsers)
}

func TestRunner_Run_SpawnRateLimitsRamp(t *testing.T) {
	r, err := NewRunner(fastOptions(acceptingSink(0)))
	require.NoError(t, err)

	// At 10/s for 500ms only about 6 of 100 users can be spawned
	stats, err := r.Run(context.Background(), Spec{
		Name:        "slow ramp",
		TargetUsers: 100,
		SpawnRate:   10,
		Duration:    500 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.PeakUsers, 3)
	assert.LessOrEqual(t, stats.PeakUsers, 8)

	for _, p := range stats.Phases {
		assert.NotEqual(t, metrics.PhaseSteady, p.Phase, "steady phase reached without full ramp")
	}
}

func TestRunner_Run_AbandonsStuckUsers(t *testing.T) {
	var aborted atomic.Int32
	stuck := sinkFunc(func(ctx context.Context, _ *performance.Payload) (int, error) {
		<-ctx.Done()
		aborted.Add(1)
		return 0, ctx.Err()
	})

	logger, hook := test.NewNullLogger()
	opts := fastOptions(stuck)
	opts.GracePeriod = 50 * time.Millisecond
	opts.Logger = logger

	r, err := NewRunner(opts)
	require.NoError(t, err)

	start := time.Now()
	stats, err := r.Run(context.Background(), Spec{
		Name:        "stuck",
		TargetUsers: 3,
		SpawnRate:   100,
		Duration:    100 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 3, stats.AbandonedUsers)
	assert.Equal(t, int64(0), stats.RequestCount)
	assert.True(t, stats.HasDataCaveat())
	assert.False(t, sla.Evaluate(stats, sla.Default()), "a stage whose users all hung must not pass")

	require.Eventually(t, func() bool { return aborted.Load() == 3 }, time.Second, time.Millisecond)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, 3, entry.Data["abandoned"])
		}
	}
	assert.True(t, warned, "expected a warning about abandoned users")
}

func TestRunner_Run_DrainWaitsForInFlightRequests(t *testing.T) {
	opts := fastOptions(acceptingSink(150 * time.Millisecond))
	opts.ThinkTime = performance.ThinkTime{Min: time.Microsecond, Max: time.Microsecond}
	r, err := NewRunner(opts)
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), Spec{
		Name:        "slow sink",
		TargetUsers: 2,
		SpawnRate:   100,
		Duration:    100 * time.Millisecond,
	})
	require.NoError(t, err)

	// Requests in flight at the stop signal finish and are counted
	assert.Equal(t, 0, stats.AbandonedUsers)
	assert.Equal(t, int64(2), stats.RequestCount)
	assert.Equal(t, int64(0), stats.FailureCount)
}

func TestRunner_Run_ContextCancelled(t *testing.T) {
	r, err := NewRunner(fastOptions(acceptingSink(0)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	stats, err := r.Run(ctx, Spec{
		Name:        "interrupted",
		TargetUsers: 5,
		SpawnRate:   100,
		Duration:    time.Minute,
	})

	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Greater(t, stats.RequestCount, int64(0))
	assert.False(t, stats.StageEnd.IsZero())
}

func TestRunner_Run_ProgressLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	opts := fastOptions(acceptingSink(0))
	opts.Logger = logger
	opts.ProgressInterval = 20 * time.Millisecond

	r, err := NewRunner(opts)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), Spec{
		Name:        "progress",
		TargetUsers: 2,
		SpawnRate:   100,
		Duration:    150 * time.Millisecond,
	})
	require.NoError(t, err)

	var progress int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "stage progress" {
			progress++
			assert.Equal(t, "progress", entry.Data["stage"])
		}
	}
	assert.GreaterOrEqual(t, progress, 2)
}
