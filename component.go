package conductor

import (
	"context"
	"maps"
	"slices"
	"time"
)

// ComponentState is the lifecycle state of a single registered component.
type ComponentState int

const (
	ComponentUnregistered ComponentState = iota
	ComponentRegistered
	ComponentInitializing
	ComponentInitialized
	ComponentShuttingDown
	ComponentShutdown
	ComponentError
)

// String returns the string representation of the component state.
func (s ComponentState) String() string {
	switch s {
	case ComponentUnregistered:
		return "unregistered"
	case ComponentRegistered:
		return "registered"
	case ComponentInitializing:
		return "initializing"
	case ComponentInitialized:
		return "initialized"
	case ComponentShuttingDown:
		return "shutting_down"
	case ComponentShutdown:
		return "shutdown"
	case ComponentError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is delivered to a component's message handler, either as part of a
// channel broadcast (Channel set) or as a direct send (Target set).
type Message struct {
	Channel string
	// Event is the label the subscriber asked for when subscribing, or the event
	// name given to SendDirect.
	Event   string
	Payload any
	Sender  string
	Target  string
	SentAt  time.Time
}

// MessageHandler handles a message addressed to a component.
type MessageHandler func(ctx context.Context, msg Message) error

// Capabilities holds the optional hooks of a component. Every hook may be nil;
// presence is recorded once when the component is registered.
type Capabilities struct {
	// Initialize runs once during start, after every dependency initialized.
	// The bus is passed so the component can subscribe, send and share data.
	Initialize func(ctx context.Context, bus *Bus) error

	// Shutdown runs during stop, in reverse initialization order.
	Shutdown func(ctx context.Context) error

	// HealthProbe runs on every health tick while the component is initialized.
	HealthProbe func(ctx context.Context) error

	// HandleMessage receives broadcasts and direct messages.
	HandleMessage MessageHandler
}

// Hooks reports which capabilities are present.
type Hooks struct {
	Initialize    bool
	Shutdown      bool
	HealthProbe   bool
	HandleMessage bool
}

func (c Capabilities) hooks() Hooks {
	return Hooks{
		Initialize:    c.Initialize != nil,
		Shutdown:      c.Shutdown != nil,
		HealthProbe:   c.HealthProbe != nil,
		HandleMessage: c.HandleMessage != nil,
	}
}

// Descriptor describes a component supplied to Controller.Start.
type Descriptor struct {
	ID           string   `validate:"required"`
	Dependencies []string `validate:"dive,required"`
	// Priority breaks ordering ties; lower values load earlier.
	Priority int
	// Channels maps a channel name to the event label delivered to this component.
	Channels     map[string]string `validate:"dive,keys,required,endkeys,required"`
	Capabilities Capabilities
}

func (d Descriptor) registerOptions() RegisterOptions {
	return RegisterOptions{
		Dependencies: slices.Clone(d.Dependencies),
		Channels:     maps.Clone(d.Channels),
		Priority:     d.Priority,
	}
}

// ComponentRecord is a snapshot of a registered component.
type ComponentRecord struct {
	ID           string
	Dependencies []string
	Priority     int
	State        ComponentState
	Channels     map[string]string
	Hooks        Hooks
	LastError    error
	RegisteredAt time.Time
}

// component is the bus-owned mutable entry behind a ComponentRecord.
type component struct {
	record ComponentRecord
	caps   Capabilities
}

func (c *component) snapshot() ComponentRecord {
	r := c.record
	r.Dependencies = slices.Clone(r.Dependencies)
	r.Channels = maps.Clone(r.Channels)
	return r
}

func (c *component) descriptor() Descriptor {
	return Descriptor{
		ID:           c.record.ID,
		Dependencies: c.record.Dependencies,
		Priority:     c.record.Priority,
		Channels:     c.record.Channels,
		Capabilities: c.caps,
	}
}
