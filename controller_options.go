package conductor

import (
	"github.com/GoCodeAlone/conductor/events"
	"github.com/GoCodeAlone/conductor/policy"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used by the controller and everything it owns.
func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDispatcher makes the controller emit on d instead of a private
// dispatcher.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(c *Controller) {
		c.dispatcher = d
	}
}

// WithPolicy replaces the error policy built from Config.Policy.
func WithPolicy(p *policy.Policy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithExitFunc replaces os.Exit for signal and critical error handling.
func WithExitFunc(fn func(code int)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.exit = fn
		}
	}
}
