package api

import (
	"net/http"
	"runtime"
	"time"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Revision      string `json:"revision,omitempty"`
	PairedRemotes int    `json:"paired_remotes"`
	WSClients     int    `json:"ws_clients"`
	Goroutines    int    `json:"goroutines"`
}

// handleHealth returns the server health status. It answers before the
// bridge is attached so supervisors can probe early.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		WSClients:     s.hub.ClientCount(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if b := s.getBridge(); b != nil {
		snap := b.Snapshot()
		resp.Revision = snap.Revision
		resp.PairedRemotes = snap.PairedRemotes
		if snap.PairingCorrupted {
			resp.Status = "degraded"
		}
	} else {
		resp.Status = "starting"
	}

	respond(w, http.StatusOK, resp)
}

// handleDiagnostics returns decoder and bridge counters.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	respond(w, http.StatusOK, b.Diagnostics())
}
