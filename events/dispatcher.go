package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Static errors for the events package
var (
	ErrObserverIDEmpty  = errors.New("observer id cannot be empty")
	ErrObserverNil      = errors.New("observer handler cannot be nil")
	ErrObserverExists   = errors.New("observer already registered")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// DefaultSubscribeBuffer is the channel capacity used when Subscribe gets no size.
const DefaultSubscribeBuffer = 64

// Logger is the subset of the conductor Logger used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Emitter is implemented by anything that can publish events. Packages that only
// produce events depend on this instead of the concrete Dispatcher.
type Emitter interface {
	Emit(source string, payload Payload) Event
}

// Event is a single emitted occurrence.
type Event struct {
	ID      string
	Source  string
	Time    time.Time
	Payload Payload
}

// Kind returns the kind of the event payload.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return KindUnknown
	}
	return e.Payload.Kind()
}

// Handler handles events synchronously on the emitting goroutine.
// Handlers must return quickly and must not block on the emitter.
//
// In particular, a handler must not call Controller.Stop synchronously. Health
// events such as module:health_check_failed are emitted from the monitor's
// scheduled job, and Stop waits for that job to finish, so the call deadlocks.
// Run Stop in a new goroutine instead.
type Handler func(Event)

type observerRegistration struct {
	id      string
	handler Handler
	kinds   map[Kind]bool
}

// Subscription delivers events of the subscribed categories on C. Delivery never
// blocks the emitter: when the buffer is full the event is dropped and counted.
type Subscription struct {
	C <-chan Event

	ch         chan Event
	categories map[Category]bool
	dropped    atomic.Uint64
	closed     bool
	dispatcher *Dispatcher
}

// Dropped returns the number of events that did not fit the buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.dispatcher.unsubscribe(s)
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.categories) == 0 || s.categories[k.Category()]
}

// Dispatcher fans events out to observers and subscriptions.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	subs      []*Subscription
	closed    bool
	logger    Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. A nil logger discards diagnostics.
func NewDispatcher(logger Logger) *Dispatcher {
	if logger == nil {
		logger = discardLogger{}
	}
	return &Dispatcher{
		logger: logger,
		now:    time.Now,
	}
}

// Observe registers a synchronous handler. Observers are called in registration
// order. With no kinds the observer receives every event.
func (d *Dispatcher) Observe(id string, handler Handler, kinds ...Kind) error {
	if id == "" {
		return ErrObserverIDEmpty
	}
	if handler == nil {
		return ErrObserverNil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	for _, reg := range d.observers {
		if reg.id == id {
			return fmt.Errorf("%w: %s", ErrObserverExists, id)
		}
	}

	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	d.observers = append(d.observers, &observerRegistration{id: id, handler: handler, kinds: kindSet})
	return nil
}

// Unobserve removes an observer. Unknown ids are ignored.
func (d *Dispatcher) Unobserve(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, reg := range d.observers {
		if reg.id == id {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// Subscribe returns a channel subscription for the given categories, or for all
// categories when none are given. A buffer <= 0 uses DefaultSubscribeBuffer.
func (d *Dispatcher) Subscribe(buffer int, categories ...Category) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscribeBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{
		C:          ch,
		ch:         ch,
		categories: make(map[Category]bool, len(categories)),
		dispatcher: d,
	}
	for _, c := range categories {
		sub.categories[c] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		sub.closed = true
		close(ch)
		return sub
	}
	d.subs = append(d.subs, sub)
	return sub
}

func (d *Dispatcher) unsubscribe(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	for i, s := range d.subs {
		if s == sub {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			break
		}
	}
}

// Emit publishes a payload and returns the event that was built for it.
// A nil payload is ignored.
func (d *Dispatcher) Emit(source string, payload Payload) Event {
	if payload == nil {
		return Event{}
	}
	event := Event{
		ID:      newEventID(),
		Source:  source,
		Time:    d.now(),
		Payload: payload,
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return event
	}
	for _, sub := range d.subs {
		if !sub.wants(event.Kind()) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
	observers := make([]*observerRegistration, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, reg := range observers {
		if len(reg.kinds) > 0 && !reg.kinds[event.Kind()] {
			continue
		}
		d.notify(reg, event)
	}
	return event
}

func (d *Dispatcher) notify(reg *observerRegistration, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Observer panicked", "observerID", reg.id, "event", event.Kind().String(), "panic", r)
		}
	}()
	reg.handler(event)
}

// Close closes every subscription and drops all observers. Later emits are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for _, sub := range d.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	d.subs = nil
	d.observers = nil
	d.logger.Debug("Event dispatcher closed")
}

// newEventID generates a time-ordered UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Error(string, ...any) {}
