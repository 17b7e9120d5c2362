package events

import (
	"context"
	"errors"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Debug(string, ...any)       {}
func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }

func TestCloudEventType(t *testing.T) {
	assert.Equal(t, "com.conductor.module.health_check_failed", CloudEventType(KindHealthCheckFailed))
	assert.Equal(t, "com.conductor.degradation.changed", CloudEventType(KindDegradationChanged))
	assert.Equal(t, "com.conductor.startup.begin", CloudEventType(KindStartupBegin))
}

func TestToCloudEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := Event{
		ID:      "evt-1",
		Source:  "bus",
		Time:    at,
		Payload: ModuleError{ID: "cache", Err: errors.New("boom"), Skipped: true},
	}

	ce := ToCloudEvent(e)
	require.NoError(t, ce.Validate())
	assert.Equal(t, "evt-1", ce.ID())
	assert.Equal(t, "bus", ce.Source())
	assert.Equal(t, "com.conductor.module.error", ce.Type())
	assert.Equal(t, cloudevents.VersionV1, ce.SpecVersion())
	assert.True(t, at.Equal(ce.Time()))
	assert.Equal(t, "module", ce.Extensions()["category"])

	var data map[string]any
	require.NoError(t, ce.DataAs(&data))
	assert.Equal(t, "cache", data["module"])
	assert.Equal(t, "boom", data["error"])
	assert.Equal(t, true, data["skipped"])
}

func TestDescribeNilError(t *testing.T) {
	data := Describe(ModuleShutdown{ID: "a"})
	assert.Equal(t, "", data["error"])
	assert.Nil(t, Describe(nil))
}

func TestCloudEventObserver(t *testing.T) {
	d := NewDispatcher(nil)
	logger := &recordingLogger{}

	var received []cloudevents.Event
	handler := CloudEventObserver(logger, func(_ context.Context, ce cloudevents.Event) error {
		received = append(received, ce)
		if ce.Type() == CloudEventType(KindShutdownError) {
			return errors.New("sink unavailable")
		}
		return nil
	})
	require.NoError(t, d.Observe("cloudevents", handler))

	d.Emit("controller", StartupComplete{Duration: time.Second})
	d.Emit("controller", ShutdownError{Err: errors.New("late")})

	require.Len(t, received, 2)
	assert.Equal(t, "com.conductor.startup.complete", received[0].Type())
	assert.Equal(t, []string{"CloudEvent observer error"}, logger.errors)
}
