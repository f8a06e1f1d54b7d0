package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/agentcore/agentcore/internal/doctor"
)

// healthz implements GET /healthz: runs the same diagnostics as the CLI
// "doctor" check and reports overall status so a load balancer or operator
// can tell a degraded process from a healthy one.
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	diag := doctor.Run(r.Context(), h.deps.DoctorDeps, h.deps.Version)

	status := http.StatusOK
	for _, res := range diag.Results {
		if res.Status == "FAIL" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(diag)
}
