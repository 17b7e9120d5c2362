// Package events defines the closed set of events emitted by the orchestration core
// and the dispatcher that delivers them.
//
// Every event carries a typed payload. The payload type determines the event Kind,
// and every Kind belongs to exactly one Category. Consumers either observe events
// synchronously in registration order (Dispatcher.Observe) or receive them on a
// buffered channel per subscription (Dispatcher.Subscribe).
package events

// Kind identifies an event. The set is closed; see the Kind constants.
type Kind int

const (
	KindUnknown Kind = iota

	// Startup phase
	KindStartupBegin
	KindModulesConfigured
	KindDependenciesValidated
	KindModulesInitialized
	KindModulesReady
	KindStartupComplete
	KindStartupError

	// Per-component lifecycle
	KindModuleRegistered
	KindModuleInitializing
	KindModuleInitialized
	KindModuleError
	KindModuleShuttingDown
	KindModuleShutdown

	// Health
	KindHealthCheckFailed

	// Shutdown phase
	KindShutdownBegin
	KindShutdownComplete
	KindShutdownError

	// Restart
	KindRestartScheduled
	KindRestartFailed

	// Policy
	KindDegradationChanged
	KindErrorRecorded

	// Bus
	KindHandlerFailed

	// Process
	KindCriticalError
)

var kindNames = map[Kind]string{
	KindStartupBegin:          "startup:begin",
	KindModulesConfigured:     "modules:configured",
	KindDependenciesValidated: "dependencies:validated",
	KindModulesInitialized:    "modules:initialized",
	KindModulesReady:          "modules:ready",
	KindStartupComplete:       "startup:complete",
	KindStartupError:          "startup:error",
	KindModuleRegistered:      "module:registered",
	KindModuleInitializing:    "module:initializing",
	KindModuleInitialized:     "module:initialized",
	KindModuleError:           "module:error",
	KindModuleShuttingDown:    "module:shutting_down",
	KindModuleShutdown:        "module:shutdown",
	KindHealthCheckFailed:     "module:health_check_failed",
	KindShutdownBegin:         "shutdown:begin",
	KindShutdownComplete:      "shutdown:complete",
	KindShutdownError:         "shutdown:error",
	KindRestartScheduled:      "restart:scheduled",
	KindRestartFailed:         "restart:failed",
	KindDegradationChanged:    "degradation-changed",
	KindErrorRecorded:         "error-recorded",
	KindHandlerFailed:         "bus:handler_failed",
	KindCriticalError:         "process:critical",
}

// String returns the wire name of the kind, e.g. "module:initialized".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Category groups kinds so consumers can subscribe to a whole phase at once.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryStartup
	CategoryModule
	CategoryHealth
	CategoryShutdown
	CategoryRestart
	CategoryPolicy
	CategoryBus
	CategoryProcess
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryStartup:
		return "startup"
	case CategoryModule:
		return "module"
	case CategoryHealth:
		return "health"
	case CategoryShutdown:
		return "shutdown"
	case CategoryRestart:
		return "restart"
	case CategoryPolicy:
		return "policy"
	case CategoryBus:
		return "bus"
	case CategoryProcess:
		return "process"
	default:
		return "unknown"
	}
}

// Category returns the category the kind belongs to.
func (k Kind) Category() Category {
	switch k {
	case KindStartupBegin, KindModulesConfigured, KindDependenciesValidated,
		KindModulesInitialized, KindModulesReady, KindStartupComplete, KindStartupError:
		return CategoryStartup
	case KindModuleRegistered, KindModuleInitializing, KindModuleInitialized,
		KindModuleError, KindModuleShuttingDown, KindModuleShutdown:
		return CategoryModule
	case KindHealthCheckFailed:
		return CategoryHealth
	case KindShutdownBegin, KindShutdownComplete, KindShutdownError:
		return CategoryShutdown
	case KindRestartScheduled, KindRestartFailed:
		return CategoryRestart
	case KindDegradationChanged, KindErrorRecorded:
		return CategoryPolicy
	case KindHandlerFailed:
		return CategoryBus
	case KindCriticalError:
		return CategoryProcess
	default:
		return CategoryUnknown
	}
}
