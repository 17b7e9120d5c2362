package conductor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/conductor/events"
	"github.com/GoCodeAlone/conductor/health"
)

// RegisterOptions carries the registration details of a component.
type RegisterOptions struct {
	Dependencies []string
	// Channels maps channel names to the event label the component receives.
	Channels map[string]string
	Priority int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the bus logger.
func WithBusLogger(logger Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBusEmitter sets where bus and per-component lifecycle events go.
func WithBusEmitter(emitter events.Emitter) BusOption {
	return func(b *Bus) {
		b.emitter = emitter
	}
}

// WithComponentTimeouts bounds every initialize and shutdown hook. Zero means
// unbounded.
func WithComponentTimeouts(initialize, shutdown time.Duration) BusOption {
	return func(b *Bus) {
		b.initTimeout = initialize
		b.shutdownTimeout = shutdown
	}
}

type subscriber struct {
	id    string
	event string
}

// Bus is the in-process registry of components, their channels and a shared
// key/value store. One lock guards all of it; hooks and handlers always run
// with the lock released.
type Bus struct {
	logger          Logger
	emitter         events.Emitter
	now             func() time.Time
	initTimeout     time.Duration
	shutdownTimeout time.Duration

	mu         sync.RWMutex
	components map[string]*component
	registered []string
	channels   map[string][]subscriber
	shared     map[string]SharedEntry
	order      []string
	orderErr   error
	started    []string
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logger:     nopLogger{},
		now:        time.Now,
		components: make(map[string]*component),
		channels:   make(map[string][]subscriber),
		shared:     make(map[string]SharedEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) emit(payload events.Payload) {
	if b.emitter != nil {
		b.emitter.Emit("bus", payload)
	}
}

// Register adds a component or replaces an existing one with the same id, in
// which case a warning is logged. On replacement, channels absent from the new
// options are dropped while channels kept keep their delivery position, with
// the new event label. The load order is recomputed; a resolution error is
// logged here and returned by InitializeAll.
func (b *Bus) Register(id string, caps Capabilities, opts RegisterOptions) error {
	if id == "" {
		return ErrComponentIDEmpty
	}

	b.mu.Lock()
	_, replaced := b.components[id]
	if replaced {
		b.unsubscribeExceptLocked(id, opts.Channels)
	} else {
		b.registered = append(b.registered, id)
	}

	c := &component{
		record: ComponentRecord{
			ID:           id,
			Dependencies: slices.Clone(opts.Dependencies),
			Priority:     opts.Priority,
			State:        ComponentRegistered,
			Channels:     make(map[string]string, len(opts.Channels)),
			Hooks:        caps.hooks(),
			RegisteredAt: b.now(),
		},
		caps: caps,
	}
	b.components[id] = c
	for _, channel := range slices.Sorted(maps.Keys(opts.Channels)) {
		b.subscribeLocked(c, channel, opts.Channels[channel])
	}
	order, err := b.resolveLocked()
	b.mu.Unlock()

	if replaced {
		b.logger.Warn("Component re-registered, previous registration replaced", "component", id)
	}
	if err != nil {
		b.logger.Debug("Load order not resolvable yet", "component", id, "error", err)
	} else {
		b.logger.Debug("Load order recomputed", "order", order)
	}
	b.emit(events.ModuleRegistered{ID: id, Replaced: replaced})
	return nil
}

func (b *Bus) resolveLocked() ([]string, error) {
	descriptors := make([]Descriptor, 0, len(b.registered))
	for _, id := range b.registered {
		descriptors = append(descriptors, b.components[id].descriptor())
	}
	b.order, b.orderErr = Resolve(descriptors)
	return b.order, b.orderErr
}

// Subscribe adds the component to channel, delivering messages labelled event.
// Subscribing again to the same channel only changes the label and keeps the
// original position.
func (b *Bus) Subscribe(id, channel, event string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.components[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, id)
	}
	b.subscribeLocked(c, channel, event)
	return nil
}

func (b *Bus) subscribeLocked(c *component, channel, event string) {
	if event == "" {
		event = channel
	}
	c.record.Channels[channel] = event

	subs := b.channels[channel]
	for i := range subs {
		if subs[i].id == c.record.ID {
			subs[i].event = event
			return
		}
	}
	b.channels[channel] = append(subs, subscriber{id: c.record.ID, event: event})
}

// unsubscribeExceptLocked drops id from every channel not present in keep.
func (b *Bus) unsubscribeExceptLocked(id string, keep map[string]string) {
	for channel, subs := range b.channels {
		if _, ok := keep[channel]; ok {
			continue
		}
		b.channels[channel] = slices.DeleteFunc(subs, func(s subscriber) bool { return s.id == id })
	}
}

// Subscribers returns the subscriber ids of channel in delivery order.
func (b *Bus) Subscribers(channel string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.channels[channel]))
	for _, s := range b.channels[channel] {
		ids = append(ids, s.id)
	}
	return ids
}

type delivery struct {
	id      string
	event   string
	handler MessageHandler
}

// Broadcast delivers payload to every subscriber of channel except the sender,
// in subscription order. A handler that fails or panics is logged and reported
// with a bus:handler_failed event; delivery to the rest continues. It returns
// the number of handlers that completed without error.
func (b *Bus) Broadcast(ctx context.Context, channel string, payload any, senderID string) int {
	b.mu.RLock()
	targets := make([]delivery, 0, len(b.channels[channel]))
	for _, s := range b.channels[channel] {
		if s.id == senderID {
			continue
		}
		c, ok := b.components[s.id]
		if !ok || c.caps.HandleMessage == nil {
			continue
		}
		targets = append(targets, delivery{id: s.id, event: s.event, handler: c.caps.HandleMessage})
	}
	b.mu.RUnlock()

	sentAt := b.now()
	delivered := 0
	for _, t := range targets {
		msg := Message{Channel: channel, Event: t.event, Payload: payload, Sender: senderID, Target: t.id, SentAt: sentAt}
		if err := invokeHandler(ctx, t.handler, msg); err != nil {
			herr := &HandlerError{Component: t.id, Channel: channel, Event: t.event, Err: err}
			b.logger.Error("Broadcast handler failed", "channel", channel, "component", t.id, "error", err)
			b.emit(events.HandlerFailed{Channel: channel, Subscriber: t.id, Err: herr})
			continue
		}
		delivered++
	}
	return delivered
}

// SendDirect delivers one message to targetID. It returns ErrComponentNotFound,
// ErrNoMessageHandler, or a *HandlerError when the handler fails.
func (b *Bus) SendDirect(ctx context.Context, targetID, event string, payload any, senderID string) error {
	b.mu.RLock()
	c, ok := b.components[targetID]
	var handler MessageHandler
	if ok {
		handler = c.caps.HandleMessage
	}
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, targetID)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNoMessageHandler, targetID)
	}

	msg := Message{Event: event, Payload: payload, Sender: senderID, Target: targetID, SentAt: b.now()}
	if err := invokeHandler(ctx, handler, msg); err != nil {
		return &HandlerError{Component: targetID, Event: event, Err: err}
	}
	return nil
}

func invokeHandler(ctx context.Context, handler MessageHandler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanicked, r)
		}
	}()
	return handler(ctx, msg)
}

// InitReport summarizes InitializeAll.
type InitReport struct {
	// Initialized lists the components that reached Initialized, in order.
	Initialized []string
	// Failed lists the components that ended in Error, in load order,
	// including those skipped for a failed dependency.
	Failed []string
	Errors map[string]error
}

// InitializeAll initializes every registered component in load order, one at a
// time, each under the component initialize timeout. A component with a
// dependency that is not Initialized is marked Error and skipped. Component
// failures are reported in the InitReport; the returned error is set only when
// the order cannot be resolved or ctx ends, in which case the report covers the
// components handled so far.
func (b *Bus) InitializeAll(ctx context.Context) (InitReport, error) {
	report := InitReport{Errors: make(map[string]error)}

	b.mu.Lock()
	if b.orderErr != nil {
		err := b.orderErr
		b.mu.Unlock()
		return report, err
	}
	order := slices.Clone(b.order)
	b.started = nil
	b.mu.Unlock()

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("initialization interrupted before %q: %w", id, err)
		}

		c, blocker := b.beginInit(id)
		if c == nil {
			continue
		}
		if blocker != "" {
			err := &DependencyFailedError{ID: id, Dependency: blocker}
			b.setState(id, ComponentError, err)
			report.Failed = append(report.Failed, id)
			report.Errors[id] = err
			b.logger.Warn("Skipping component, dependency not initialized", "component", id, "dependency", blocker)
			b.emit(events.ModuleError{ID: id, Err: err, Skipped: true})
			continue
		}

		b.emit(events.ModuleInitializing{ID: id})
		start := b.now()
		var err error
		if c.caps.Initialize != nil {
			err = runHook(ctx, b.initTimeout, "initialize", id, ErrInitializationTimeout, func(hctx context.Context) error {
				return c.caps.Initialize(hctx, b)
			})
		}
		if err != nil {
			b.setState(id, ComponentError, err)
			report.Failed = append(report.Failed, id)
			report.Errors[id] = err
			b.logger.Error("Component initialization failed", "component", id, "error", err)
			b.emit(events.ModuleError{ID: id, Err: err})
			if ctx.Err() != nil {
				return report, fmt.Errorf("initialization interrupted at %q: %w", id, ctx.Err())
			}
			continue
		}

		b.mu.Lock()
		c.record.State = ComponentInitialized
		c.record.LastError = nil
		b.started = append(b.started, id)
		b.mu.Unlock()

		report.Initialized = append(report.Initialized, id)
		duration := b.now().Sub(start)
		b.logger.Info("Component initialized", "component", id, "duration", duration)
		b.emit(events.ModuleInitialized{ID: id, Duration: duration})
	}
	return report, nil
}

// beginInit returns the component and the first dependency that blocks it. When
// nothing blocks, the component moves to Initializing.
func (b *Bus) beginInit(id string) (*component, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.components[id]
	if !ok {
		return nil, ""
	}
	for _, dep := range c.record.Dependencies {
		if d, ok := b.components[dep]; !ok || d.record.State != ComponentInitialized {
			return c, dep
		}
	}
	c.record.State = ComponentInitializing
	return c, ""
}

// ShutdownAll shuts down the initialized components in exact reverse of the
// order they initialized in, each under the component shutdown timeout. Every
// component is attempted while ctx is live; the errors are joined.
func (b *Bus) ShutdownAll(ctx context.Context) error {
	b.mu.RLock()
	started := slices.Clone(b.started)
	b.mu.RUnlock()
	slices.Reverse(started)

	var errs []error
	for _, id := range started {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown interrupted before %q: %w", id, err))
			break
		}

		b.mu.Lock()
		c, ok := b.components[id]
		if ok {
			c.record.State = ComponentShuttingDown
		}
		b.mu.Unlock()
		if !ok {
			continue
		}

		b.emit(events.ModuleShuttingDown{ID: id})
		var err error
		if c.caps.Shutdown != nil {
			err = runHook(ctx, b.shutdownTimeout, "shutdown", id, ErrShutdownTimeout, c.caps.Shutdown)
		}

		b.mu.Lock()
		b.started = slices.DeleteFunc(b.started, func(s string) bool { return s == id })
		if err != nil {
			c.record.State = ComponentError
			c.record.LastError = err
		} else {
			c.record.State = ComponentShutdown
		}
		b.mu.Unlock()

		if err != nil {
			b.logger.Error("Component shutdown failed", "component", id, "error", err)
			errs = append(errs, fmt.Errorf("component %q: %w", id, err))
		} else {
			b.logger.Info("Component shut down", "component", id)
		}
		b.emit(events.ModuleShutdown{ID: id, Err: err})
	}
	return errors.Join(errs...)
}

// runHook runs fn under timeout and ctx. The hook keeps running in the
// background if it ignores its context, but the caller moves on.
func runHook(ctx context.Context, timeout time.Duration, op, id string, sentinel error, fn func(context.Context) error) error {
	hctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %s of %q: %v", ErrHookPanicked, op, id, r)
			}
		}()
		done <- fn(hctx)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TimeoutError{Op: op, ID: id, Limit: timeout, Err: sentinel}
	}
}

func (b *Bus) setState(id string, state ComponentState, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.components[id]; ok {
		c.record.State = state
		c.record.LastError = err
	}
}

// LoadOrder returns the current load order and the error of the last
// resolution, if any.
func (b *Bus) LoadOrder() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order), b.orderErr
}

// Started returns the components currently initialized, in initialization order.
func (b *Bus) Started() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.started)
}

// Record returns a snapshot of one component.
func (b *Bus) Record(id string) (ComponentRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.components[id]
	if !ok {
		return ComponentRecord{}, false
	}
	return c.snapshot(), true
}

// Records returns snapshots of all components in registration order.
func (b *Bus) Records() []ComponentRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ComponentRecord, 0, len(b.registered))
	for _, id := range b.registered {
		out = append(out, b.components[id].snapshot())
	}
	return out
}

// Ready reports whether every component that is not in Error is Initialized.
func (b *Bus) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.components {
		if c.record.State != ComponentInitialized && c.record.State != ComponentError {
			return false
		}
	}
	return true
}

// Probes returns a health probe for every Initialized component, in load order.
// Components without a probe get a nil check and always pass.
func (b *Bus) Probes() []health.Probe {
	b.mu.RLock()
	defer b.mu.RUnlock()

	probes := make([]health.Probe, 0, len(b.started))
	for _, id := range b.started {
		c := b.components[id]
		if c.record.State != ComponentInitialized {
			continue
		}
		probes = append(probes, health.Probe{ID: id, Check: c.caps.HealthProbe})
	}
	return probes
}

// Reset clears every registry: components, channels, shared data and order.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.components)
	clear(b.channels)
	clear(b.shared)
	b.registered = nil
	b.order = nil
	b.orderErr = nil
	b.started = nil
}
