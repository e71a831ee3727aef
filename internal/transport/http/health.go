package http

import (
	"context"
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// HandleHealth reports liveness, and readiness of the database when a ping
// function is supplied. Load balancers route away from a 503.
func HandleHealth(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Database = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
