// Package health runs periodic health probes against initialized components and
// keeps the latest report for each of them.
package health

import (
	"context"
	"time"
)

// Status represents the health of a component.
type Status int

const (
	// StatusUnknown means no probe result exists yet.
	StatusUnknown Status = iota

	// StatusHealthy means the last probe passed, or the component has no probe.
	StatusHealthy

	// StatusDegraded means the last probe did not answer within the probe timeout.
	StatusDegraded

	// StatusUnhealthy means the last probe returned an error or panicked.
	StatusUnhealthy
)

// String returns the string representation of the health status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// IsHealthy returns true if the status represents a healthy state
func (s Status) IsHealthy() bool {
	return s == StatusHealthy
}

// Worst returns the more severe of two statuses. Unknown ranks below Healthy.
func Worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Probe is a single component health check. A nil Check always passes.
type Probe struct {
	ID    string
	Check func(ctx context.Context) error
}

// Source supplies the probes to run on each tick. It is consulted on every tick
// so components that stop being initialized drop out of rotation.
type Source interface {
	Probes() []Probe
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() []Probe

// Probes calls f.
func (f SourceFunc) Probes() []Probe { return f() }

// Cleaner performs the periodic maintenance run on the cleanup interval.
type Cleaner interface {
	Cleanup(ctx context.Context)
}

// Report is the latest probe outcome for one component.
type Report struct {
	ID        string        `json:"id"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     error         `json:"-"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`

	// ObservedSince is when the component entered its current status.
	ObservedSince time.Time `json:"observedSince"`

	ConsecutiveFailures int `json:"consecutiveFailures"`
}

// Logger is the subset of the conductor Logger used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
