package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/GoCodeAlone/conductor"
	"github.com/GoCodeAlone/conductor/health"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type componentStatus struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	Dependencies []string `json:"dependencies,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type statusResponse struct {
	State           string            `json:"state"`
	Total           int               `json:"total"`
	Initialized     int               `json:"initialized"`
	Failed          int               `json:"failed"`
	RestartAttempts int               `json:"restartAttempts"`
	ShuttingDown    bool              `json:"shuttingDown"`
	Degradation     string            `json:"degradation"`
	Order           []string          `json:"order"`
	Components      []componentStatus `json:"components"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	State   string         `json:"state"`
	Reports []healthReport `json:"reports"`
}

type healthReport struct {
	health.Report
	Status string `json:"status"`
}

type orderResponse struct {
	Order []string `json:"order"`
	Error string   `json:"error,omitempty"`
}

// NewRouter exposes the controller state over HTTP.
func NewRouter(ctrl *conductor.Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, buildStatus(ctrl))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		resp, code := buildHealth(ctrl)
		writeJSON(w, code, resp)
	})
	r.Get("/order", func(w http.ResponseWriter, _ *http.Request) {
		order, err := ctrl.Bus().LoadOrder()
		if err != nil {
			writeJSON(w, http.StatusConflict, orderResponse{Order: []string{}, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, orderResponse{Order: order})
	})
	return r
}

func buildStatus(ctrl *conductor.Controller) statusResponse {
	st := ctrl.Status()
	resp := statusResponse{
		State:           st.State.String(),
		Total:           st.Total,
		Initialized:     st.Initialized,
		Failed:          st.Failed,
		RestartAttempts: st.RestartAttempts,
		ShuttingDown:    st.ShuttingDown,
		Degradation:     st.Degradation.String(),
		Order:           st.Order,
		Components:      []componentStatus{},
	}
	if resp.Order == nil {
		resp.Order = []string{}
	}
	for _, rec := range ctrl.Bus().Records() {
		cs := componentStatus{ID: rec.ID, State: rec.State.String(), Dependencies: rec.Dependencies}
		if rec.LastError != nil {
			cs.Error = rec.LastError.Error()
		}
		resp.Components = append(resp.Components, cs)
	}
	return resp
}

// buildHealth answers 503 unless the controller runs and no probe is unhealthy.
func buildHealth(ctrl *conductor.Controller) (healthResponse, int) {
	overall := ctrl.Monitor().Overall()
	state := ctrl.State()

	resp := healthResponse{Status: overall.String(), State: state.String(), Reports: []healthReport{}}
	for _, r := range ctrl.Monitor().Reports() {
		resp.Reports = append(resp.Reports, healthReport{Report: r, Status: r.Status.String()})
	}

	if state != conductor.StateRunning || overall == health.StatusUnhealthy {
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
