package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/flemzord/mcphub/internal/sandbox"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"` // "ok" or "degraded"
	Tools   int    `json:"tools"`
	Sandbox string `json:"sandbox,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The endpoint is
// also the sandbox manager's probe target, so it answers 200 whenever the
// process is up; a degraded sandbox is reported in the body.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.proxy != nil {
			resp.Tools = g.proxy.Len()
		}
		if g.sandbox != nil {
			resp.Sandbox = string(g.sandbox.State())
			if resp.Sandbox == string(sandbox.StateUnhealthy) {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
