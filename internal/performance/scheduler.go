package performance

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ActiveGauge is notified whenever the number of running users changes.
type ActiveGauge interface {
	SetActiveUsers(count int)
}

// SchedulerConfig configures a VUScheduler.
type SchedulerConfig struct {
	Selector       *Selector
	Sink           RequestSink
	Recorder       Recorder
	Gauge          ActiveGauge
	ThinkTime      ThinkTime
	AcceptedStatus int

	// Seed for the per-user random sources. Zero uses the clock.
	Seed int64

	Logger logrus.FieldLogger
}

// VUScheduler manages the lifecycle of the Virtual Users of one stage.
//
// It provides:
// - VU spawning, each on its own goroutine
// - an active user count reported to the gauge
// - broadcast stop and bounded drain
type VUScheduler struct {
	cfg    SchedulerConfig
	logger logrus.FieldLogger

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
	seed     int64

	// activeMu keeps gauge updates in the same order as count changes
	active   int
	activeMu sync.Mutex

	wg sync.WaitGroup
}

// NewVUScheduler creates a new VU scheduler.
func NewVUScheduler(cfg SchedulerConfig) (*VUScheduler, error) {
	if cfg.Selector == nil {
		return nil, errors.New("scheduler requires a task selector")
	}
	if cfg.Sink == nil {
		return nil, errors.New("scheduler requires a request sink")
	}
	if cfg.Recorder == nil {
		return nil, errors.New("scheduler requires a recorder")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &VUScheduler{
		cfg:    cfg,
		logger: logger,
		vus:    make(map[int]*VirtualUser),
		seed:   seed,
	}, nil
}

// SpawnVU creates a Virtual User and starts it on its own goroutine.
//
// ctx bounds the user's in-flight requests (see VirtualUser.Run).
func (s *VUScheduler) SpawnVU(ctx context.Context) *VirtualUser {
	id := int(s.nextVUID.Add(1))

	vu := NewVirtualUser(id, VUConfig{
		Selector:       s.cfg.Selector,
		Sink:           s.cfg.Sink,
		Recorder:       s.cfg.Recorder,
		ThinkTime:      s.cfg.ThinkTime,
		AcceptedStatus: s.cfg.AcceptedStatus,
	}, rand.New(rand.NewSource(s.seed+int64(id)*7919)))

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	s.addActive(1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.addActive(-1)

		vu.Run(ctx)

		s.logger.WithFields(logrus.Fields{
			"vu":       vu.ID,
			"requests": vu.GetIteration(),
		}).Debug("virtual user stopped")
	}()

	return vu
}

func (s *VUScheduler) addActive(delta int) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	s.active += delta
	if s.cfg.Gauge != nil {
		s.cfg.Gauge.SetActiveUsers(s.active)
	}
}

// ActiveVUCount returns the number of VU goroutines still running.
func (s *VUScheduler) ActiveVUCount() int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.active
}

// SpawnedVUCount returns how many VUs have been spawned.
func (s *VUScheduler) SpawnedVUCount() int {
	return int(s.nextVUID.Load())
}

// StopAllVUs broadcasts the stop signal to every VU.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAllVUs waits for all VUs to stop with a timeout.
//
// Returns the number of VUs that did not stop within the timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		if !vu.WaitForStop(time.Until(deadline)) {
			notStopped++
			s.logger.WithFields(logrus.Fields{
				"vu":    vu.ID,
				"state": vu.GetState().String(),
			}).Debug("virtual user did not stop within grace period")
		}
	}

	return notStopped
}

// Wait blocks until every VU goroutine has exited.
func (s *VUScheduler) Wait() {
	s.wg.Wait()
}
