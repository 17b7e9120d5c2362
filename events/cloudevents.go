package events

import (
	"context"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// CloudEventTypePrefix prefixes every CloudEvent type produced by ToCloudEvent,
// following reverse domain notation.
const CloudEventTypePrefix = "com.conductor."

// CloudEventType maps a kind to its CloudEvent type, e.g.
// "module:health_check_failed" becomes "com.conductor.module.health_check_failed".
func CloudEventType(k Kind) string {
	name := strings.NewReplacer(":", ".", "-", ".").Replace(k.String())
	return CloudEventTypePrefix + name
}

// ToCloudEvent converts an event into its CloudEvents representation. The event id,
// source and time are preserved; the payload becomes JSON data.
func ToCloudEvent(e Event) cloudevents.Event {
	ce := cloudevents.NewEvent()
	ce.SetID(e.ID)
	ce.SetSource(e.Source)
	ce.SetType(CloudEventType(e.Kind()))
	ce.SetTime(e.Time)
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetExtension("category", e.Kind().Category().String())
	if data := Describe(e.Payload); len(data) > 0 {
		_ = ce.SetData(cloudevents.ApplicationJSON, data)
	}
	return ce
}

// Describe flattens a payload into a JSON friendly map. Errors become strings.
func Describe(p Payload) map[string]any {
	switch v := p.(type) {
	case StartupBegin:
		return map[string]any{"components": v.Components, "attempt": v.Attempt}
	case ModulesConfigured:
		return map[string]any{"count": v.Count}
	case DependenciesValidated:
		return map[string]any{"order": v.Order}
	case ModulesInitialized:
		return map[string]any{"initialized": v.Initialized, "failed": v.Failed}
	case ModulesReady:
		return map[string]any{"ready": v.Ready}
	case StartupComplete:
		return map[string]any{"duration": v.Duration.String()}
	case StartupError:
		return map[string]any{"error": errString(v.Err), "attempt": v.Attempt}
	case ModuleRegistered:
		return map[string]any{"module": v.ID, "replaced": v.Replaced}
	case ModuleInitializing:
		return map[string]any{"module": v.ID}
	case ModuleInitialized:
		return map[string]any{"module": v.ID, "duration": v.Duration.String()}
	case ModuleError:
		return map[string]any{"module": v.ID, "error": errString(v.Err), "skipped": v.Skipped}
	case ModuleShuttingDown:
		return map[string]any{"module": v.ID}
	case ModuleShutdown:
		return map[string]any{"module": v.ID, "error": errString(v.Err)}
	case HealthCheckFailed:
		return map[string]any{"module": v.ID, "error": errString(v.Err)}
	case ShutdownBegin:
		return map[string]any{"components": v.Components}
	case ShutdownComplete:
		return map[string]any{"duration": v.Duration.String()}
	case ShutdownError:
		return map[string]any{"error": errString(v.Err)}
	case RestartScheduled:
		return map[string]any{"attempt": v.Attempt, "delay": v.Delay.String()}
	case RestartFailed:
		return map[string]any{"error": errString(v.Err), "attempts": v.Attempts}
	case DegradationChanged:
		return map[string]any{"old": v.Old, "new": v.New}
	case ErrorRecorded:
		return map[string]any{"key": v.Key, "count": v.Count}
	case HandlerFailed:
		return map[string]any{"channel": v.Channel, "subscriber": v.Subscriber, "error": errString(v.Err)}
	case CriticalError:
		return map[string]any{"error": errString(v.Err)}
	default:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// CloudEventObserver returns a Handler that converts each event to a CloudEvent
// and passes it to fn. Errors returned by fn are logged, never propagated.
func CloudEventObserver(logger Logger, fn func(ctx context.Context, event cloudevents.Event) error) Handler {
	if logger == nil {
		logger = discardLogger{}
	}
	return func(e Event) {
		ce := ToCloudEvent(e)
		if err := ce.Validate(); err != nil {
			logger.Error("Invalid CloudEvent", "eventType", ce.Type(), "error", err)
			return
		}
		if err := fn(context.Background(), ce); err != nil {
			logger.Error("CloudEvent observer error", "eventType", ce.Type(), "error", err)
		}
	}
}
