package conductor

// Logger defines the interface for orchestrator logging.
// Messages use key-value pairs so output stays structured regardless of the
// backend:
//
//	logger.Info("Component initialized", "component", "database", "duration", d)
//
// NewZerologLogger adapts github.com/rs/zerolog. Any slog-like logger fits with a
// thin wrapper.
type Logger interface {
	// Info logs normal lifecycle progress such as a component starting.
	Info(msg string, args ...any)

	// Error logs failures that the orchestrator contained or reported.
	Error(msg string, args ...any)

	// Warn logs unusual but tolerated conditions, e.g. a component re-registration.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics such as resolved dependency edges.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
