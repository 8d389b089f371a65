package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

type probeStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// HealthChecker backs the liveness and readiness probe endpoints. Readiness
// flips on after startup wiring completes and off again during shutdown.
type HealthChecker struct {
	ready atomic.Bool
	start time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{start: time.Now()}
}

// SetReady marks the service as ready to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler reports OK for as long as the process runs.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.writeProbe(w, http.StatusOK, "alive")
}

// ReadinessHandler reports 200 once ready, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		h.writeProbe(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	h.writeProbe(w, http.StatusOK, "ready")
}

func (h *HealthChecker) writeProbe(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(probeStatus{
		Status: status,
		Uptime: time.Since(h.start).String(),
	})
}
