//go:build unix

package daemon

import (
	"net/http"

	"github.com/KONFeature/wordforge/internal/supervisor"
)

type PortResponse struct {
	Port *int `json:"port"`
}

type SidecarStatusResponse struct {
	Status supervisor.Status `json:"status"`
}

func (d *Daemon) handleSidecarStart(w http.ResponseWriter, r *http.Request) {
	port, err := d.app.StartSidecar(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, PortResponse{Port: &port}, http.StatusOK)
}

func (d *Daemon) handleSidecarStop(w http.ResponseWriter, r *http.Request) {
	if err := d.app.StopSidecar(); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleSidecarPort(w http.ResponseWriter, r *http.Request) {
	var resp PortResponse
	if port, ok := d.app.SidecarPort(); ok {
		resp.Port = &port
	}
	writeJSON(w, resp, http.StatusOK)
}

func (d *Daemon) handleSidecarStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, SidecarStatusResponse{Status: d.app.SidecarStatus()}, http.StatusOK)
}

// handleIdleShutdown acknowledges immediately; the stop runs in the
// background.
func (d *Daemon) handleIdleShutdown(w http.ResponseWriter, r *http.Request) {
	d.app.IdleShutdown()
	w.WriteHeader(http.StatusAccepted)
}
