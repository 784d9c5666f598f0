// Package handlers provides HTTP request handlers for the notebase API.
package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

var startTime = time.Now()

// Version is reported by the health endpoint.
var Version string

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
	// Head is the journal position; -1 when the store cannot be read.
	Head    int64  `json:"head"`
	Breaker string `json:"sync_breaker,omitempty"`
}

// Health handles the health check endpoint. A store that cannot be read
// reports "degraded" with status 503.
func Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   Version,
		GoVersion: runtime.Version(),
	}

	status := http.StatusOK
	if ctx := GetContext(); ctx != nil && ctx.App != nil {
		head, err := ctx.App.Store().Head(r.Context())
		if err != nil {
			head = -1
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		response.Head = head
		response.Breaker = ctx.App.Sync().State()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
