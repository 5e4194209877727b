package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/priyank/cloudvault/internal/backend"
)

// HealthHandler reports service liveness and per-backend availability.
type HealthHandler struct {
	registry *backend.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry *backend.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// BackendHealth is one backend's availability at probe time.
type BackendHealth struct {
	Kind      string `json:"kind"`
	Available bool   `json:"available"`
}

// HealthResponse represents the response for a health probe.
type HealthResponse struct {
	Status   string          `json:"status"`
	Backends []BackendHealth `json:"backends"`
}

// ServeHTTP handles GET /health. Degraded (503) only when no backend at
// all can take an upload.
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var backends []BackendHealth
	anyAvailable := false
	for _, b := range hh.registry.All() {
		available := b.IsAvailable(ctx)
		anyAvailable = anyAvailable || available
		backends = append(backends, BackendHealth{
			Kind:      string(b.Kind()),
			Available: available,
		})
	}

	resp := HealthResponse{Status: "ok", Backends: backends}
	code := http.StatusOK
	if !anyAvailable {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
