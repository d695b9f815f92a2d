package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultSampleInterval = 15 * time.Second

	metricsNamespace = "queuehealth"
	metricsSubsystem = "delayed_jobs"
)

type SamplerOptions struct {
	Interval   time.Duration
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Sampler periodically reads the queue through a Gateway and publishes its
// depth and oldest job age as Prometheus gauges. HTTP status responses never
// read from it.
type Sampler struct {
	gateway  Gateway
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
	errors    prometheus.Counter

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewSampler(gateway Gateway, opts SamplerOptions) *Sampler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Sampler{
		gateway:  gateway,
		interval: interval,
		logger:   logger,
		now:      now,
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pending",
			Help:      "Number of rows in the job queue table at the last sample.",
		}),
		oldestAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "oldest_age_seconds",
			Help:      "Age of the oldest pending job at the last sample, 0 when the queue is empty.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sample_errors_total",
			Help:      "Total number of failed queue samples.",
		}),
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.pending, s.oldestAge, s.errors)
	}
	return s
}

// SampleOnce reads the queue once and updates the gauges. On failure the
// gauges keep their previous values.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	count, err := s.gateway.Count(ctx)
	if err != nil {
		s.errors.Inc()
		return err
	}
	age := 0.0
	if count > 0 {
		oldest, err := s.gateway.Oldest(ctx)
		if err != nil {
			s.errors.Inc()
			return err
		}
		if oldest != nil {
			age = s.now().Sub(*oldest).Seconds()
			if age < 0 {
				age = 0
			}
		}
	}
	s.pending.Set(float64(count))
	s.oldestAge.Set(age)
	return nil
}

func (s *Sampler) Start(parent context.Context) error {
	if s == nil || s.gateway == nil {
		return fmt.Errorf("queue sampler is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.started = true

	go s.run(ctx, done)
	return nil
}

func (s *Sampler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.started = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	return nil
}

func (s *Sampler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		if err := s.SampleOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("queue sample failed", "error", err)
		}
		if !sleepOrDone(ctx, s.interval) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
