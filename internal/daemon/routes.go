//go:build unix

package daemon

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler returns the daemon's command API.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", d.handleHealth)

	mux.HandleFunc("GET /api/installer/version", d.handleInstalledVersion)
	mux.HandleFunc("GET /api/installer/latest", d.handleLatestVersion)
	mux.HandleFunc("GET /api/installer/update", d.handleCheckUpdate)
	mux.HandleFunc("POST /api/installer/download", d.handleDownload)

	mux.HandleFunc("POST /api/sidecar/start", d.handleSidecarStart)
	mux.HandleFunc("POST /api/sidecar/stop", d.handleSidecarStop)
	mux.HandleFunc("GET /api/sidecar/port", d.handleSidecarPort)
	mux.HandleFunc("GET /api/sidecar/status", d.handleSidecarStatus)
	mux.HandleFunc("POST /api/sidecar/idle-shutdown", d.handleIdleShutdown)

	mux.HandleFunc("GET /api/sites", d.handleListSites)
	mux.HandleFunc("GET /api/sites/active", d.handleActiveSite)
	mux.HandleFunc("PUT /api/sites/active", d.handleSetActiveSite)
	mux.HandleFunc("POST /api/sites/connect", d.handleConnectSite)
	mux.HandleFunc("GET /api/sites/config", d.handleCheckConfig)
	mux.HandleFunc("POST /api/sites/refresh", d.handleRefreshConfig)
	mux.HandleFunc("DELETE /api/sites/{id}", d.handleRemoveSite)
	mux.HandleFunc("GET /api/sites/{id}/folder", d.handleSiteFolder)
	mux.HandleFunc("GET /api/sites/{id}/agents", d.handleSiteAgents)

	mux.HandleFunc("POST /api/deep-link", d.handleDeepLink)
	mux.HandleFunc("GET /api/events", d.handleEvents)
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(d.startTime).Seconds(),
		Sidecar: d.app.SidecarStatus(),
	}, http.StatusOK)
}

// Helper functions

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, data any, status int) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, ErrorResponse{Error: message}, status)
}
