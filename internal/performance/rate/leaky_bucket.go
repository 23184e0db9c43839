// Package rate paces events (such as virtual user spawns) at a target rate.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket releases one event per 1/rate seconds.
//
// The bucket keeps a virtual "drip" time that advances at a fixed rate.
// Next reports when the next event may happen; if the caller is behind
// schedule it returns now. Accumulated credit is capped at one event, so a
// slow consumer never causes a burst.
//
// A new bucket starts with one event of credit: the first Next returns
// immediately.
//
// LeakyBucket is safe for concurrent use.
//
//	lb := NewLeakyBucket(20.0) // 20 spawns per second
//	for spawned < target {
//	    if err := lb.Wait(ctx); err != nil {
//	        break
//	    }
//	    spawn()
//	}
type LeakyBucket struct {
	rate        float64
	lastDrip    time.Time
	accumulated float64
	mu          sync.Mutex

	totalEvents   atomic.Int64
	totalWaitTime atomic.Int64 // nanoseconds
}

// NewLeakyBucket creates a bucket releasing rate events per second.
// A non-positive rate falls back to 1 per second.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
	}
}

// Next returns when the next event should happen. The returned time may
// be in the past when the consumer is behind schedule.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate
	if lb.accumulated > 1.0 {
		lb.accumulated = 1.0
	}

	if lb.accumulated >= 1.0 {
		lb.accumulated -= 1.0
		lb.lastDrip = now
		lb.totalEvents.Add(1)
		return now
	}

	deficit := 1.0 - lb.accumulated
	waitSeconds := deficit / lb.rate
	lb.accumulated = 0

	nextTime := now.Add(time.Duration(waitSeconds * float64(time.Second)))

	// lastDrip moves to nextTime, not now: waking up at nextTime must not
	// find a full credit already accumulated.
	lb.lastDrip = nextTime

	lb.totalEvents.Add(1)
	lb.totalWaitTime.Add(int64(nextTime.Sub(now)))

	return nextTime
}

// Wait blocks until the next event is due or ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns statistics about the bucket's operation.
func (lb *LeakyBucket) Stats() LeakyBucketStats {
	lb.mu.Lock()
	rate := lb.rate
	accumulated := lb.accumulated
	lb.mu.Unlock()

	return LeakyBucketStats{
		Rate:          rate,
		Accumulated:   accumulated,
		TotalEvents:   lb.totalEvents.Load(),
		TotalWaitTime: time.Duration(lb.totalWaitTime.Load()),
	}
}

// LeakyBucketStats contains statistics about the leaky bucket.
type LeakyBucketStats struct {
	Rate          float64       `json:"rate"`
	Accumulated   float64       `json:"accumulated"`
	TotalEvents   int64         `json:"totalEvents"`
	TotalWaitTime time.Duration `json:"totalWaitTime"`
}
