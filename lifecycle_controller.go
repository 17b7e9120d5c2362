package conductor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/conductor/config"
	"github.com/GoCodeAlone/conductor/events"
	"github.com/GoCodeAlone/conductor/health"
	"github.com/GoCodeAlone/conductor/policy"
	"golang.org/x/sync/singleflight"
)

// State is the controller state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// startupKey is the error policy key of failed start attempts.
const startupKey = "startup"

// Status is a point-in-time view of the controller.
type Status struct {
	State           State
	Total           int
	Initialized     int
	Failed          int
	RestartAttempts int
	ShuttingDown    bool
	Degradation     policy.Level
	// Order is the initialization order achieved by the last successful start.
	Order []string
}

// Controller drives components through start and stop. Start and Stop are
// coalesced per operation, and the two never run concurrently: a Stop issued
// while a Start is in flight runs once the start settles.
type Controller struct {
	cfg        Config
	logger     Logger
	dispatcher *events.Dispatcher
	policy     *policy.Policy
	bus        *Bus
	monitor    *health.Monitor
	exit       func(code int)

	flight singleflight.Group
	opMu   sync.Mutex

	mu              sync.RWMutex
	state           State
	descriptors     []Descriptor
	lastOrder       []string
	restartAttempts int
	restartTimer    *time.Timer
	restartGen      uint64
	shuttingDown    bool
	hooks           *processHooks
}

// NewController creates a controller. Zero config fields take their defaults;
// the result must pass validation.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if err := config.ProcessDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfigValidationFailed, err)
	}

	c := &Controller{
		cfg:    cfg,
		logger: nopLogger{},
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dispatcher == nil {
		c.dispatcher = events.NewDispatcher(c.logger)
	}
	if c.policy == nil {
		c.policy = policy.New(cfg.Policy, policy.WithLogger(c.logger), policy.WithEmitter(c.dispatcher))
	}
	c.bus = NewBus(
		WithBusLogger(c.logger),
		WithBusEmitter(c.dispatcher),
		WithComponentTimeouts(cfg.ComponentInitTimeout, cfg.ComponentShutdownTimeout),
	)
	c.monitor = health.NewMonitor(cfg.healthConfig(), c.bus,
		health.WithLogger(c.logger),
		health.WithEmitter(c.dispatcher),
		health.WithCleaner(c.policy),
	)
	return c, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Bus returns the communication bus owned by the controller.
func (c *Controller) Bus() *Bus { return c.bus }

// Policy returns the error policy owned by the controller.
func (c *Controller) Policy() *policy.Policy { return c.policy }

// Monitor returns the health monitor owned by the controller.
func (c *Controller) Monitor() *health.Monitor { return c.monitor }

// Events returns the dispatcher every event is emitted on.
func (c *Controller) Events() *events.Dispatcher { return c.dispatcher }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) emit(payload events.Payload) {
	c.dispatcher.Emit("controller", payload)
}

// Status returns the current state and component counts.
func (c *Controller) Status() Status {
	records := c.bus.Records()

	c.mu.RLock()
	st := Status{
		State:           c.state,
		Total:           len(records),
		RestartAttempts: c.restartAttempts,
		ShuttingDown:    c.shuttingDown,
		Order:           slices.Clone(c.lastOrder),
	}
	c.mu.RUnlock()

	for _, r := range records {
		switch r.State {
		case ComponentInitialized:
			st.Initialized++
		case ComponentError:
			st.Failed++
		}
	}
	st.Degradation = c.policy.Level()
	return st
}

// Start validates and resolves the descriptors, then registers and initializes
// the components in load order. Calling Start while running returns nil;
// concurrent calls share one attempt.
//
// Invalid descriptors, duplicate ids, missing dependencies and cycles fail
// immediately and leave the controller in StateError. Other failures roll back
// the components initialized so far and, while the restart budget lasts,
// schedule a restart after RestartDelay; Start then returns nil and the
// outcome is reported through events and Status.
//
// Start in StateError returns ErrInvalidStateTransition, also while a restart
// is pending; it does not join the pending attempt. Call Stop first, which
// cancels the pending restart.
func (c *Controller) Start(ctx context.Context, descriptors []Descriptor) error {
	_, err, shared := c.flight.Do("start", func() (any, error) {
		return nil, c.start(ctx, descriptors)
	})
	if shared {
		c.logger.Debug("Joined in-flight start")
	}
	return err
}

func (c *Controller) start(ctx context.Context, descriptors []Descriptor) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch s := c.State(); s {
	case StateRunning:
		return nil
	case StateError:
		return fmt.Errorf("%w: cannot start from %s, stop first", ErrInvalidStateTransition, s)
	}

	c.mu.Lock()
	c.descriptors = slices.Clone(descriptors)
	c.restartAttempts = 0
	c.mu.Unlock()
	c.policy.Reset(startupKey)

	return c.attempt(ctx)
}

// attempt runs one start sequence over the stored descriptors. opMu is held.
func (c *Controller) attempt(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateStarting
	attempt := c.restartAttempts + 1
	descriptors := c.descriptors
	c.mu.Unlock()

	begin := time.Now()
	c.logger.Info("Starting components", "components", len(descriptors), "attempt", attempt)
	c.emit(events.StartupBegin{Components: len(descriptors), Attempt: attempt})

	if err := c.runStartup(ctx, descriptors); err != nil {
		return c.failStart(ctx, attempt, err)
	}

	c.mu.Lock()
	c.state = StateRunning
	c.restartAttempts = 0
	c.lastOrder = c.bus.Started()
	c.mu.Unlock()
	c.policy.Reset(startupKey)

	duration := time.Since(begin)
	c.logger.Info("Startup complete", "duration", duration)
	c.emit(events.StartupComplete{Duration: duration})
	return nil
}

func (c *Controller) runStartup(ctx context.Context, descriptors []Descriptor) error {
	c.installHooks()
	c.bus.Reset()
	c.monitor.Reset()

	for i, d := range descriptors {
		if err := config.Struct(d); err != nil {
			return fmt.Errorf("%w: descriptor %d (%q): %w", ErrInvalidDescriptor, i, d.ID, err)
		}
	}

	order, err := Resolve(descriptors)
	if err != nil {
		var cycleErr *CyclicDependencyError
		if errors.As(err, &cycleErr) {
			c.logger.Error("Dependency cycle detected", "cycle", cycleErr.Cycle)
		}
		return fmt.Errorf("resolve dependencies: %w", err)
	}

	byID := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}
	for _, id := range order {
		d := byID[id]
		if err := c.bus.Register(d.ID, d.Capabilities, d.registerOptions()); err != nil {
			return fmt.Errorf("register %q: %w", id, err)
		}
	}
	c.emit(events.ModulesConfigured{Count: len(order)})
	c.logger.Debug("Component load order", "order", order)
	c.emit(events.DependenciesValidated{Order: order})

	loadCtx, cancel := context.WithTimeout(ctx, c.cfg.ModuleLoadTimeout)
	report, err := c.bus.InitializeAll(loadCtx)
	cancel()
	c.emit(events.ModulesInitialized{Initialized: report.Initialized, Failed: report.Failed})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{Op: "module load", Limit: c.cfg.ModuleLoadTimeout, Err: ErrInitializationTimeout}
		}
		return err
	}

	if len(descriptors) > 0 && len(report.Initialized) == 0 {
		errs := make([]error, 0, len(report.Failed))
		for _, id := range report.Failed {
			errs = append(errs, report.Errors[id])
		}
		return fmt.Errorf("%w: %w", ErrNoComponentsInitialized, errors.Join(errs...))
	}
	if c.cfg.RequireAllComponents && len(report.Failed) > 0 {
		return fmt.Errorf("%w: %s", ErrComponentsFailed, strings.Join(report.Failed, ", "))
	}

	if err := c.waitReady(ctx); err != nil {
		return err
	}
	c.emit(events.ModulesReady{Ready: len(report.Initialized)})

	if err := c.monitor.Start(); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	return nil
}

// waitReady polls until every non-failed component is Initialized.
func (c *Controller) waitReady(ctx context.Context) error {
	deadline := time.NewTimer(c.cfg.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.ReadyPollInterval)
	defer ticker.Stop()

	for {
		if c.bus.Ready() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return &TimeoutError{Op: "ready", Limit: c.cfg.ReadyTimeout, Err: ErrReadyTimeout}
		case <-ctx.Done():
			return fmt.Errorf("waiting for components: %w", ctx.Err())
		}
	}
}

// failStart rolls back, records the failure and decides whether to restart.
func (c *Controller) failStart(ctx context.Context, attempt int, err error) error {
	c.rollback()
	c.setState(StateError)
	c.logger.Error("Startup failed", "attempt", attempt, "error", err)
	c.emit(events.StartupError{Err: err, Attempt: attempt})

	if isPermanentStartError(err) || ctx.Err() != nil {
		return err
	}

	decision := c.policy.Retry(&StartupFailure{Attempt: attempt, Err: err}, policy.ErrorContext{
		Key:         startupKey,
		Component:   "controller",
		MaxRetries:  c.cfg.MaxRestartAttempts,
		OnExhausted: policy.NotifyOperator,
	})
	if c.cfg.DisableAutoRestart {
		return err
	}
	if decision.Action != policy.RetryOperation {
		c.mu.RLock()
		restarts := c.restartAttempts
		c.mu.RUnlock()
		c.logger.Error("Restart attempts exhausted", "attempts", restarts, "error", err)
		c.emit(events.RestartFailed{Err: err, Attempts: restarts})
		return err
	}

	c.scheduleRestart(decision.Attempt)
	return nil
}

func (c *Controller) rollback() {
	c.monitor.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.bus.ShutdownAll(ctx); err != nil {
		c.logger.Error("Rollback shutdown failed", "error", err)
	}
}

func (c *Controller) scheduleRestart(attempt int) {
	delay := c.cfg.RestartDelay

	c.mu.Lock()
	c.restartAttempts = attempt
	gen := c.restartGen
	c.restartTimer = time.AfterFunc(delay, func() { c.restart(gen) })
	c.mu.Unlock()

	c.logger.Warn("Restart scheduled", "attempt", attempt, "delay", delay)
	c.emit(events.RestartScheduled{Attempt: attempt, Delay: delay})
}

// restart runs a scheduled attempt under opMu, outside the start flight.
func (c *Controller) restart(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if gen != c.restartGen || c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.restartTimer = nil
	c.mu.Unlock()

	_ = c.attempt(context.Background())
}

func (c *Controller) cancelRestart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.restartGen++
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

// Stop shuts components down in reverse initialization order under
// ShutdownTimeout, clears the bus and releases signal hooks. A pending restart
// is cancelled. When the shutdown phase runs out of time, whether on
// ShutdownTimeout or on ctx, the error wraps a *TimeoutError, the controller
// stays in StateError and the components not yet shut down stay registered; a
// further Stop shuts those down and settles to StateStopped.
func (c *Controller) Stop(ctx context.Context) error {
	c.cancelRestart()
	_, err, _ := c.flight.Do("stop", func() (any, error) {
		return nil, c.stop(ctx)
	})
	return err
}

func (c *Controller) stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	// a start that settled while we waited may have scheduled a restart
	c.cancelRestart()

	switch c.State() {
	case StateStopped:
		return nil
	case StateError:
		if len(c.bus.Started()) == 0 {
			c.monitor.Stop()
			c.finishStop(time.Now())
			return nil
		}
	}

	begin := time.Now()
	c.mu.Lock()
	c.state = StateStopping
	c.shuttingDown = true
	c.mu.Unlock()

	started := c.bus.Started()
	c.logger.Info("Stopping components", "components", len(started))
	c.emit(events.ShutdownBegin{Components: len(started)})
	c.monitor.Stop()

	sctx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	err := c.bus.ShutdownAll(sctx)
	// either deadline counts; components left behind keep the registry alive
	interrupted := sctx.Err() != nil && (err != nil || len(c.bus.Started()) > 0)
	limit := c.cfg.ShutdownTimeout
	if deadline, ok := sctx.Deadline(); ok {
		limit = min(limit, deadline.Sub(begin))
	}
	cancel()

	if interrupted {
		err = errors.Join(&TimeoutError{Op: "shutdown", Limit: limit, Err: ErrShutdownTimeout}, err)
	}
	if err != nil {
		c.logger.Error("Shutdown error", "error", err, "remaining", c.bus.Started())
		c.emit(events.ShutdownError{Err: err})
	}
	if interrupted {
		c.releaseHooks()
		c.mu.Lock()
		c.state = StateError
		c.shuttingDown = false
		c.mu.Unlock()
		return err
	}

	c.finishStop(begin)
	return err
}

func (c *Controller) finishStop(begin time.Time) {
	c.bus.Reset()
	c.monitor.Reset()
	c.releaseHooks()

	c.mu.Lock()
	c.state = StateStopped
	c.shuttingDown = false
	c.mu.Unlock()

	duration := time.Since(begin)
	c.logger.Info("Shutdown complete", "duration", duration)
	c.emit(events.ShutdownComplete{Duration: duration})
}
