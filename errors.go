package conductor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Orchestrator errors
var (
	// Descriptor and resolution errors
	ErrInvalidDescriptor  = errors.New("invalid component descriptor")
	ErrDuplicateComponent = errors.New("duplicate component id")
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrCyclicDependency   = errors.New("cyclic dependency detected")

	// Component lifecycle errors
	ErrInitializationTimeout = errors.New("initialization timed out")
	ErrShutdownTimeout       = errors.New("shutdown timed out")
	ErrReadyTimeout          = errors.New("components not ready before timeout")
	ErrDependencyFailed      = errors.New("dependency failed")
	ErrHookPanicked          = errors.New("component hook panicked")

	// Bus errors
	ErrComponentIDEmpty  = errors.New("component id cannot be empty")
	ErrComponentNotFound = errors.New("component not found")
	ErrNoMessageHandler  = errors.New("component has no message handler")
	ErrHandlerFailure    = errors.New("message handler failed")

	// Controller errors
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrNoComponentsInitialized = errors.New("no component initialized")
	ErrComponentsFailed        = errors.New("one or more components failed to initialize")
	ErrCriticalProcess         = errors.New("critical process error")
)

// DependencyNotFoundError reports a dependency id that no descriptor declares.
type DependencyNotFoundError struct {
	Missing  string
	Referrer string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("%s: component %q depends on %q", ErrDependencyNotFound, e.Referrer, e.Missing)
}

func (e *DependencyNotFoundError) Unwrap() error { return ErrDependencyNotFound }

// CyclicDependencyError reports the cycle found during resolution as a closed
// path, e.g. [a b a].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Cycle, " → "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// TimeoutError reports an operation that did not finish within its budget.
// Op names the phase ("initialize", "shutdown", "module load", "ready"); ID is
// empty for phase-wide timeouts.
type TimeoutError struct {
	Op    string
	ID    string
	Limit time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s exceeded %s", e.Err, e.Op, e.Limit)
	}
	return fmt.Sprintf("%s: %s of %q exceeded %s", e.Err, e.Op, e.ID, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout reports true so generic callers can recognise the error as a timeout.
func (e *TimeoutError) Timeout() bool { return true }

// DependencyFailedError marks a component that was skipped because one of its
// dependencies did not initialize.
type DependencyFailedError struct {
	ID         string
	Dependency string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("%s: %q skipped, dependency %q is not initialized", ErrDependencyFailed, e.ID, e.Dependency)
}

func (e *DependencyFailedError) Unwrap() error { return ErrDependencyFailed }

// HandlerError wraps an error returned (or a panic raised) by a message handler.
type HandlerError struct {
	Component string
	Channel   string
	Event     string
	Err       error
}

func (e *HandlerError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s: %q on channel %q: %v", ErrHandlerFailure, e.Component, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s: %q handling %q: %v", ErrHandlerFailure, e.Component, e.Event, e.Err)
}

// Unwrap exposes both the sentinel and the handler's own error.
func (e *HandlerError) Unwrap() []error { return []error{ErrHandlerFailure, e.Err} }

// StartupFailure wraps an error that aborted a start attempt. It reports itself
// as temporary so the error policy treats it as retryable.
type StartupFailure struct {
	Attempt int
	Err     error
}

func (e *StartupFailure) Error() string {
	return fmt.Sprintf("startup attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *StartupFailure) Unwrap() error { return e.Err }

func (e *StartupFailure) Temporary() bool { return true }

// isPermanentStartError reports errors that a restart cannot fix.
func isPermanentStartError(err error) bool {
	return errors.Is(err, ErrInvalidDescriptor) ||
		errors.Is(err, ErrDuplicateComponent) ||
		errors.Is(err, ErrDependencyNotFound) ||
		errors.Is(err, ErrCyclicDependency)
}
