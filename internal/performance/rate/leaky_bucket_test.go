package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewLeakyBucket(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		expected float64
	}{
		{"positive rate", 100.0, 100.0},
		{"zero rate defaults to 1", 0.0, 1.0},
		{"negative rate defaults to 1", -10.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := NewLeakyBucket(tt.rate)
			if got := lb.Stats().Rate; got != tt.expected {
				t.Errorf("Stats().Rate = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLeakyBucket_Next_ImmediateFirst(t *testing.T) {
	lb := NewLeakyBucket(1.0)

	now := time.Now()
	next := lb.Next()

	if diff := next.Sub(now); diff > 5*time.Millisecond {
		t.Errorf("First Next() should be immediate, got delay of %v", diff)
	}
}

func TestLeakyBucket_Next_CorrectRate(t *testing.T) {
	rate := 100.0 // 10ms apart
	lb := NewLeakyBucket(rate)

	_ = lb.Next()

	next := lb.Next()
	expectedDelay := time.Duration(float64(time.Second) / rate)
	actualDelay := time.Until(next)

	if actualDelay < expectedDelay-5*time.Millisecond || actualDelay > expectedDelay+5*time.Millisecond {
		t.Errorf("Delay between calls = %v, want ~%v", actualDelay, expectedDelay)
	}
}

func TestLeakyBucket_Wait_RespectsContext(t *testing.T) {
	lb := NewLeakyBucket(1.0)
	_ = lb.Next()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := lb.Wait(ctx)
	elapsed := time.Since(start)

	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("Wait() took %v, should have cancelled quickly", elapsed)
	}
}

func TestLeakyBucket_Wait_CancelledContextWhenDue(t *testing.T) {
	lb := NewLeakyBucket(1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := lb.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want Canceled", err)
	}
}

func TestLeakyBucket_WaitPacesEvents(t *testing.T) {
	lb := NewLeakyBucket(50.0) // 20ms apart
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 11; i++ {
		if err := lb.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First event is immediate, the other ten take ~200ms
	if elapsed < 150*time.Millisecond || elapsed > 400*time.Millisecond {
		t.Errorf("11 events at 50/s took %v, want ~200ms", elapsed)
	}
}

func TestLeakyBucket_Concurrent(t *testing.T) {
	lb := NewLeakyBucket(1000.0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = lb.Wait(ctx)
			}
		}()
	}
	wg.Wait()

	stats := lb.Stats()
	if stats.TotalEvents != 100 {
		t.Errorf("TotalEvents = %d, want 100", stats.TotalEvents)
	}
	if stats.Accumulated > 1.0 {
		t.Errorf("Accumulated = %v, want at most 1", stats.Accumulated)
	}
}
