package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/conductor/events"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Static errors for the health package
var (
	ErrInvalidInterval = errors.New("health check interval must be positive")
	ErrProbeTimeout    = errors.New("health probe timed out")
	ErrProbePanicked   = errors.New("health probe panicked")
)

// Config controls the monitor schedules.
type Config struct {
	// Interval between probe ticks.
	Interval time.Duration
	// CleanupInterval between cleanup runs. Zero disables cleanup.
	CleanupInterval time.Duration
	// ProbeTimeout bounds every single probe. Zero means no bound.
	ProbeTimeout time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithEmitter sets where module:health_check_failed events go.
func WithEmitter(emitter events.Emitter) Option {
	return func(m *Monitor) {
		m.emitter = emitter
	}
}

// WithCleaner sets the job run on the cleanup interval.
func WithCleaner(cleaner Cleaner) Option {
	return func(m *Monitor) {
		m.cleaner = cleaner
	}
}

// Monitor probes components on a fixed interval. Probes of one tick run
// concurrently; a failing probe is reported and never stops the others.
type Monitor struct {
	cfg     Config
	source  Source
	cleaner Cleaner
	emitter events.Emitter
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	reports map[string]Report
}

// NewMonitor creates a monitor over the given probe source.
func NewMonitor(cfg Config, source Source, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		source:  source,
		logger:  nopLogger{},
		now:     time.Now,
		reports: make(map[string]Report),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// every is a constant-delay schedule. Unlike cron's "@every" it keeps
// sub-second intervals.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// Start schedules the probe and cleanup jobs. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() error {
	if m.cfg.Interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, m.cfg.Interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return nil
	}

	clog := cronLogger{m.logger}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	c.Schedule(every(m.cfg.Interval), cron.FuncJob(func() { m.CheckNow(ctx) }))
	if m.cleaner != nil && m.cfg.CleanupInterval > 0 {
		c.Schedule(every(m.cfg.CleanupInterval), cron.FuncJob(func() { m.cleaner.Cleanup(ctx) }))
	}

	m.logger.Info("Starting health monitor", "interval", m.cfg.Interval, "cleanupInterval", m.cfg.CleanupInterval)
	c.Start()
	m.cron, m.cancel = c, cancel
	return nil
}

// Stop cancels both schedules and waits for running jobs to return. No job runs
// after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	m.logger.Info("Health monitor stopped")
}

// Running reports whether the schedules are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

type probeResult struct {
	id       string
	err      error
	duration time.Duration
	status   Status
}

// CheckNow runs one probe tick synchronously and returns its reports in probe
// order.
func (m *Monitor) CheckNow(ctx context.Context) []Report {
	probes := m.source.Probes()
	results := make([]probeResult, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			start := m.now()
			err := m.runProbe(ctx, p)
			results[i] = probeResult{id: p.ID, err: err, duration: m.now().Sub(start), status: statusOf(err)}
			return nil
		})
	}
	_ = g.Wait()

	checkedAt := m.now()
	out := make([]Report, 0, len(results))

	m.mu.Lock()
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seen[r.id] = true
		prev, had := m.reports[r.id]
		report := Report{
			ID:            r.id,
			Status:        r.status,
			Error:         r.err,
			CheckedAt:     checkedAt,
			Duration:      r.duration,
			ObservedSince: checkedAt,
		}
		if r.err != nil {
			report.Message = r.err.Error()
			report.ConsecutiveFailures = 1
			if had {
				report.ConsecutiveFailures = prev.ConsecutiveFailures + 1
			}
		}
		if had && prev.Status == report.Status {
			report.ObservedSince = prev.ObservedSince
		}
		m.reports[r.id] = report
		out = append(out, report)
	}
	for id := range m.reports {
		if !seen[id] {
			delete(m.reports, id)
		}
	}
	m.mu.Unlock()

	for _, r := range results {
		if r.err == nil {
			continue
		}
		m.logger.Error("Health check failed", "component", r.id, "error", r.err)
		if m.emitter != nil {
			m.emitter.Emit("health", events.HealthCheckFailed{ID: r.id, Err: r.err})
		}
	}
	return out
}

func (m *Monitor) runProbe(ctx context.Context, p Probe) error {
	if p.Check == nil {
		return nil
	}
	if m.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrProbePanicked, r)
			}
		}()
		done <- p.Check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrProbeTimeout, m.cfg.ProbeTimeout)
		}
		return ctx.Err()
	}
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusHealthy
	case errors.Is(err, ErrProbeTimeout):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// Reports returns the latest report of every probed component sorted by id.
func (m *Monitor) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := slices.Sorted(maps.Keys(m.reports))
	out := make([]Report, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.reports[id])
	}
	return out
}

// Report returns the latest report for one component.
func (m *Monitor) Report(id string) (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	return r, ok
}

// Overall returns the worst status across all reports, or StatusUnknown when
// nothing was probed yet.
func (m *Monitor) Overall() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := StatusUnknown
	for _, r := range m.reports {
		status = Worst(status, r.Status)
	}
	return status
}

// Reset drops all reports.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.reports)
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
