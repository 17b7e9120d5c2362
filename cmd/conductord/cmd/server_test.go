package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/conductor"
)

func startController(t *testing.T, specs ...ComponentSpec) *conductor.Controller {
	t.Helper()

	cfg := conductor.DefaultConfig()
	cfg.ReadyPollInterval = 5 * time.Millisecond
	cfg.HealthCheckInterval = time.Hour
	cfg.DisableAutoRestart = true

	ctrl, err := conductor.NewController(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Stop(context.Background()) })

	m := &Manifest{Components: specs}
	_ = ctrl.Start(context.Background(), m.Descriptors(nil))
	return ctrl
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	return rec.Code
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := startController(t, SampleManifest().Components...)
	h := NewRouter(ctrl)

	var st statusResponse
	require.Equal(t, http.StatusOK, get(t, h, "/status", &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.Initialized)
	assert.Zero(t, st.Failed)
	assert.Equal(t, "normal", st.Degradation)
	assert.Equal(t, []string{"storage", "cache", "api"}, st.Order)
	require.Len(t, st.Components, 3)
	for _, c := range st.Components {
		assert.Equal(t, "initialized", c.State, c.ID)
		assert.Empty(t, c.Error)
	}
}

func TestStatusEndpointReportsComponentErrors(t *testing.T) {
	ctrl := startController(t,
		ComponentSpec{ID: "ok"},
		ComponentSpec{ID: "broken", FailInit: true},
	)

	var st statusResponse
	require.Equal(t, http.StatusOK, get(t, NewRouter(ctrl), "/status", &st))
	assert.Equal(t, "running", st.State)
	assert.Equal(t, 1, st.Failed)

	var broken componentStatus
	for _, c := range st.Components {
		if c.ID == "broken" {
			broken = c
		}
	}
	assert.Equal(t, "error", broken.State)
	assert.Contains(t, broken.Error, errSimulatedFailure.Error())
}

func TestHealthEndpoint(t *testing.T) {
	ctrl := startController(t, ComponentSpec{ID: "a"}, ComponentSpec{ID: "b", Dependencies: []string{"a"}})
	h := NewRouter(ctrl)

	var resp healthResponse
	require.Equal(t, http.StatusOK, get(t, h, "/health", &resp), "unknown is not unhealthy")
	assert.Equal(t, "unknown", resp.Status)

	ctrl.Monitor().CheckNow(context.Background())
	require.Equal(t, http.StatusOK, get(t, h, "/health", &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "running", resp.State)
	require.Len(t, resp.Reports, 2)
	assert.Equal(t, "healthy", resp.Reports[0].Status)
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	ctrl := startController(t, ComponentSpec{ID: "sick", FailHealth: true})
	ctrl.Monitor().CheckNow(context.Background())

	var resp healthResponse
	require.Equal(t, http.StatusServiceUnavailable, get(t, NewRouter(ctrl), "/health", &resp))
	assert.Equal(t, "unhealthy", resp.Status)
}

func TestHealthEndpointStopped(t *testing.T) {
	ctrl, err := conductor.NewController(conductor.DefaultConfig())
	require.NoError(t, err)

	var resp healthResponse
	require.Equal(t, http.StatusServiceUnavailable, get(t, NewRouter(ctrl), "/health", &resp))
	assert.Equal(t, "stopped", resp.State)
	assert.Empty(t, resp.Reports)
}

func TestOrderEndpoint(t *testing.T) {
	ctrl := startController(t, SampleManifest().Components...)

	var resp orderResponse
	require.Equal(t, http.StatusOK, get(t, NewRouter(ctrl), "/order", &resp))
	assert.Equal(t, []string{"storage", "cache", "api"}, resp.Order)
	assert.Empty(t, resp.Error)
}

func TestOrderEndpointUnresolvable(t *testing.T) {
	ctrl, err := conductor.NewController(conductor.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, ctrl.Bus().Register("a", conductor.Capabilities{}, conductor.RegisterOptions{Dependencies: []string{"ghost"}}))

	var resp orderResponse
	require.Equal(t, http.StatusConflict, get(t, NewRouter(ctrl), "/order", &resp))
	assert.Empty(t, resp.Order)
	assert.Contains(t, resp.Error, "ghost")
}
