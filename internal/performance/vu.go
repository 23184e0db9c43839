package performance

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateCreated indicates the VU has its context but has not started.
	VUStateCreated VUState = iota
	// VUStateRunning indicates the VU is issuing requests.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop and is
	// finishing its in-flight request.
	VUStateStopping
	// VUStateDone indicates the VU has fully stopped.
	VUStateDone
)

func (s VUState) String() string {
	switch s {
	case VUStateCreated:
		return "created"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateDone:
		return "done"
	default:
		return "unknown"
	}
}

// DefaultAcceptedStatus is the status the event service answers with when
// it has accepted an event.
const DefaultAcceptedStatus = http.StatusAccepted

// Recorder receives request outcomes. It returns false when the outcome
// was not counted.
type Recorder interface {
	Record(outcome metrics.RequestOutcome) bool
}

// ThinkTime is the interval a user pauses before each request.
// The pause is drawn uniformly from [Min, Max].
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// DefaultThinkTime returns the 100-500ms pause of an interactive user.
func DefaultThinkTime() ThinkTime {
	return ThinkTime{Min: 100 * time.Millisecond, Max: 500 * time.Millisecond}
}

// Sample draws one pause.
func (t ThinkTime) Sample(rng *rand.Rand) time.Duration {
	if t.Max <= t.Min {
		if t.Min < 0 {
			return 0
		}
		return t.Min
	}
	return t.Min + time.Duration(rng.Int63n(int64(t.Max-t.Min)+1))
}

// VirtualUser is a single simulated actor.
//
// Each VU owns its UserContext and random source; the only state it
// shares with other users is the Recorder. The loop is:
//
//	think -> select task -> build payload -> send -> record
//
// until RequestStop is called. Stopping is cooperative: a request that is
// already in flight always completes and is recorded.
type VirtualUser struct {
	// Unique identifier for this VU within its stage
	ID int

	// User is the identity sent with every event
	User UserContext

	selector *Selector
	sink     RequestSink
	recorder Recorder
	think    ThinkTime
	accepted int
	rng      *rand.Rand

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Stop signal, closed exactly once by RequestStop
	stopCh chan struct{}

	// Done signal (closed when the VU fully stops)
	doneCh chan struct{}

	iteration atomic.Int64
}

// VUConfig holds what a virtual user needs to run.
type VUConfig struct {
	Selector       *Selector
	Sink           RequestSink
	Recorder       Recorder
	ThinkTime      ThinkTime
	AcceptedStatus int
}

// NewVirtualUser creates a VU in the Created state. rng must not be shared
// with any other VU.
func NewVirtualUser(id int, cfg VUConfig, rng *rand.Rand) *VirtualUser {
	accepted := cfg.AcceptedStatus
	if accepted == 0 {
		accepted = DefaultAcceptedStatus
	}
	return &VirtualUser{
		ID:       id,
		User:     NewUserContext(time.Now()),
		selector: cfg.Selector,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		think:    cfg.ThinkTime,
		accepted: accepted,
		rng:      rng,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of requests started so far.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Run executes the request loop until RequestStop is called or ctx is
// done, then marks the VU as Done.
//
// ctx bounds in-flight requests. The stop signal alone never interrupts a
// request; cancelling ctx is how a caller abandons a user that outlived
// its grace period.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.MarkStopped()

	if !vu.state.CompareAndSwap(int32(VUStateCreated), int32(VUStateRunning)) {
		return
	}

	for {
		if !vu.applyThinkTime(ctx) {
			return
		}
		vu.RunIteration(ctx)
	}
}

// RunIteration selects a task, sends its event and records the outcome.
// Outcomes of requests aborted by ctx are not recorded.
func (vu *VirtualUser) RunIteration(ctx context.Context) metrics.RequestOutcome {
	vu.iteration.Add(1)

	task := vu.selector.Select(vu.rng)
	payload := BuildPayload(task, vu.User, vu.rng, time.Now())

	start := time.Now()
	status, err := vu.sink.Send(ctx, payload)
	end := time.Now()

	outcome := metrics.RequestOutcome{
		Category:   task.Category,
		StatusCode: status,
		Latency:    end.Sub(start),
		Timestamp:  end,
	}

	switch {
	case err != nil:
		outcome.StatusCode = 0
		outcome.ErrorDetail = err.Error()
	case status != vu.accepted:
		outcome.ErrorDetail = fmt.Sprintf("Status: %d", status)
	default:
		outcome.Succeeded = true
	}

	if err != nil && ctx.Err() != nil {
		return outcome
	}

	vu.recorder.Record(outcome)
	return outcome
}

// applyThinkTime waits for a sampled pause. It returns false when the VU
// should exit instead of starting another iteration.
func (vu *VirtualUser) applyThinkTime(ctx context.Context) bool {
	pause := vu.think.Sample(vu.rng)

	if pause <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-vu.stopCh:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
	}

	// A stop that raced with the timer still wins.
	select {
	case <-vu.stopCh:
		return false
	default:
		return true
	}
}

// RequestStop signals the VU to stop before its next iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateCreated), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-vu.doneCh:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done returns a channel that is closed once the VU has stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateDone))
	select {
	case <-vu.doneCh:
		// Already closed
	default:
		close(vu.doneCh)
	}
}
