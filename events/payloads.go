package events

import "time"

// Payload is the typed body of an event. The interface is sealed: only the
// payload types declared in this package implement it.
type Payload interface {
	Kind() Kind
	sealed()
}

// StartupBegin is emitted when a start attempt begins.
type StartupBegin struct {
	Components int
	Attempt    int
}

// ModulesConfigured is emitted once descriptors are validated and registered.
type ModulesConfigured struct {
	Count int
}

// DependenciesValidated carries the resolved load order.
type DependenciesValidated struct {
	Order []string
}

// ModulesInitialized summarizes the sequential initialization phase.
type ModulesInitialized struct {
	Initialized []string
	Failed      []string
}

// ModulesReady is emitted when every non-failed component reports Initialized.
type ModulesReady struct {
	Ready int
}

// StartupComplete is emitted on the transition to Running.
type StartupComplete struct {
	Duration time.Duration
}

// StartupError reports a failed start attempt.
type StartupError struct {
	Err     error
	Attempt int
}

// ModuleRegistered is emitted by the bus on registration.
type ModuleRegistered struct {
	ID       string
	Replaced bool
}

// ModuleInitializing precedes a component's initialize hook.
type ModuleInitializing struct {
	ID string
}

// ModuleInitialized follows a successful initialize hook.
type ModuleInitialized struct {
	ID       string
	Duration time.Duration
}

// ModuleError reports a component that ended in the Error state. Skipped is set
// when the component was never attempted because a dependency failed.
type ModuleError struct {
	ID      string
	Err     error
	Skipped bool
}

// ModuleShuttingDown precedes a component's shutdown hook.
type ModuleShuttingDown struct {
	ID string
}

// ModuleShutdown follows a component's shutdown hook. Err is nil on success.
type ModuleShutdown struct {
	ID  string
	Err error
}

// HealthCheckFailed reports a failing health probe.
type HealthCheckFailed struct {
	ID  string
	Err error
}

// ShutdownBegin is emitted when Stop starts tearing components down.
type ShutdownBegin struct {
	Components int
}

// ShutdownComplete is emitted on the transition to Stopped.
type ShutdownComplete struct {
	Duration time.Duration
}

// ShutdownError reports a failed or timed out shutdown.
type ShutdownError struct {
	Err error
}

// RestartScheduled is emitted when the controller schedules an automatic restart.
type RestartScheduled struct {
	Attempt int
	Delay   time.Duration
}

// RestartFailed is emitted when the restart budget is exhausted.
type RestartFailed struct {
	Err      error
	Attempts int
}

// DegradationChanged reports a change of the degradation level.
type DegradationChanged struct {
	Old int
	New int
}

// ErrorRecorded reports an occurrence counted by the error policy.
type ErrorRecorded struct {
	Key   string
	Count int
}

// HandlerFailed reports a contained message handler failure on the bus.
type HandlerFailed struct {
	Channel    string
	Subscriber string
	Err        error
}

// CriticalError reports a process-level failure that triggers shutdown and exit.
type CriticalError struct {
	Err error
}

func (StartupBegin) Kind() Kind          { return KindStartupBegin }
func (ModulesConfigured) Kind() Kind     { return KindModulesConfigured }
func (DependenciesValidated) Kind() Kind { return KindDependenciesValidated }
func (ModulesInitialized) Kind() Kind    { return KindModulesInitialized }
func (ModulesReady) Kind() Kind          { return KindModulesReady }
func (StartupComplete) Kind() Kind       { return KindStartupComplete }
func (StartupError) Kind() Kind          { return KindStartupError }
func (ModuleRegistered) Kind() Kind      { return KindModuleRegistered }
func (ModuleInitializing) Kind() Kind    { return KindModuleInitializing }
func (ModuleInitialized) Kind() Kind     { return KindModuleInitialized }
func (ModuleError) Kind() Kind           { return KindModuleError }
func (ModuleShuttingDown) Kind() Kind    { return KindModuleShuttingDown }
func (ModuleShutdown) Kind() Kind        { return KindModuleShutdown }
func (HealthCheckFailed) Kind() Kind     { return KindHealthCheckFailed }
func (ShutdownBegin) Kind() Kind         { return KindShutdownBegin }
func (ShutdownComplete) Kind() Kind      { return KindShutdownComplete }
func (ShutdownError) Kind() Kind         { return KindShutdownError }
func (RestartScheduled) Kind() Kind      { return KindRestartScheduled }
func (RestartFailed) Kind() Kind         { return KindRestartFailed }
func (DegradationChanged) Kind() Kind    { return KindDegradationChanged }
func (ErrorRecorded) Kind() Kind         { return KindErrorRecorded }
func (HandlerFailed) Kind() Kind         { return KindHandlerFailed }
func (CriticalError) Kind() Kind         { return KindCriticalError }

func (StartupBegin) sealed()          {}
func (ModulesConfigured) sealed()     {}
func (DependenciesValidated) sealed() {}
func (ModulesInitialized) sealed()    {}
func (ModulesReady) sealed()          {}
func (StartupComplete) sealed()       {}
func (StartupError) sealed()          {}
func (ModuleRegistered) sealed()      {}
func (ModuleInitializing) sealed()    {}
func (ModuleInitialized) sealed()     {}
func (ModuleError) sealed()           {}
func (ModuleShuttingDown) sealed()    {}
func (ModuleShutdown) sealed()        {}
func (HealthCheckFailed) sealed()     {}
func (ShutdownBegin) sealed()         {}
func (ShutdownComplete) sealed()      {}
func (ShutdownError) sealed()         {}
func (RestartScheduled) sealed()      {}
func (RestartFailed) sealed()         {}
func (DegradationChanged) sealed()    {}
func (ErrorRecorded) sealed()         {}
func (HandlerFailed) sealed()         {}
func (CriticalError) sealed()         {}
