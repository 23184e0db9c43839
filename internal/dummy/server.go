// Package dummy implements a local stand-in for the event service: it
// accepts events, answers health checks and exposes Prometheus metrics.
// Latency, failure rate and health are configurable so that a load test
// can be pointed at a target with known behaviour.
package dummy

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config configures the dummy service.
type Config struct {
	// Latency is added to every accepted or rejected event.
	Latency time.Duration

	// Jitter adds a uniform random [0, Jitter) on top of Latency.
	Jitter time.Duration

	// FailureRate is the probability in [0, 1] that an event is rejected with 500.
	FailureRate float64

	// Unhealthy makes the health endpoint report "unhealthy" with 503.
	Unhealthy bool

	// Seed for the failure and jitter random source; zero uses the clock.
	Seed int64
}

type serverMetrics struct {
	events   *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// Server is the dummy event service.
type Server struct {
	cfg      Config
	logger   logrus.FieldLogger
	engine   *gin.Engine
	registry *prometheus.Registry
	metrics  serverMetrics

	// rngMu guards rng and cfg.FailureRate
	rngMu sync.Mutex
	rng   *rand.Rand

	accepted atomic.Int64
	rejected atomic.Int64
	invalid  atomic.Int64
}

type eventRequest struct {
	UserID    string                 `json:"user_id" binding:"required"`
	EventType string                 `json:"event_type" binding:"required"`
	Timestamp string                 `json:"timestamp" binding:"required"`
	Payload   map[string]interface{} `json:"payload"`
	Priority  int                    `json:"priority"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// New creates a server. Each server has its own metrics registry, so any
// number of them can run in one process.
func New(cfg Config, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		rng:      rand.New(rand.NewSource(seed)),
		metrics: serverMetrics{
			events: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "events_received_total",
				Help: "Events received by type and result.",
			}, []string{"event_type", "result"}),
			duration: factory.NewHistogram(prometheus.HistogramOpts{
				Name:    "event_request_duration_seconds",
				Help:    "Time spent handling event requests.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			}),
			inFlight: factory.NewGauge(prometheus.GaugeOpts{
				Name: "event_requests_in_flight",
				Help: "Event requests currently being handled.",
			}),
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(s.requestLogger(), gin.Recovery())

	api := engine.Group("/api/v1")
	{
		api.POST("/events", s.handleEvent)
		api.GET("/health", s.handleHealth)
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	s.engine = engine
	return s
}

// Handler returns the HTTP handler of the service.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Counts returns how many events were accepted, rejected on purpose and
// refused as malformed.
func (s *Server) Counts() (accepted, rejected, invalid int64) {
	return s.accepted.Load(), s.rejected.Load(), s.invalid.Load()
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("dummy event service listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleEvent(c *gin.Context) {
	start := time.Now()
	s.metrics.inFlight.Inc()
	defer func() {
		s.metrics.inFlight.Dec()
		s.metrics.duration.Observe(time.Since(start).Seconds())
	}()

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalid.Add(1)
		s.metrics.events.WithLabelValues("unknown", "invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delay, fail := s.draw()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.Request.Context().Done():
			timer.Stop()
			return
		}
	}

	if fail {
		s.rejected.Add(1)
		s.metrics.events.WithLabelValues(req.EventType, "rejected").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event store unavailable"})
		return
	}

	s.accepted.Add(1)
	s.metrics.events.WithLabelValues(req.EventType, "accepted").Inc()
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"event_id": uuid.NewString(),
	})
}

// SetFailureRate changes the rejection probability of subsequent events.
func (s *Server) SetFailureRate(rate float64) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.cfg.FailureRate = rate
}

// draw samples the delay and failure decision for one event.
func (s *Server) draw() (time.Duration, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	delay := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		delay += time.Duration(s.rng.Int63n(int64(s.cfg.Jitter)))
	}
	fail := s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate
	return delay, fail
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.cfg.Unhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "event-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(start).String(),
		}).Debug("request processed")
	}
}
