//go:build unix

package daemon

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KONFeature/wordforge/internal/installer"
)

type VersionResponse struct {
	Version *string `json:"version"`
}

type UpdateResponse struct {
	UpdateAvailable bool `json:"update_available"`
}

// DownloadLine is one NDJSON line of the download stream. The last line
// carries either Version or Error.
type DownloadLine struct {
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent"`
	Done    bool   `json:"done,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (d *Daemon) handleInstalledVersion(w http.ResponseWriter, r *http.Request) {
	v, err := d.app.InstalledVersion()
	if errors.Is(err, installer.ErrNotInstalled) {
		writeJSON(w, VersionResponse{}, http.StatusOK)
		return
	}
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, VersionResponse{Version: &v}, http.StatusOK)
}

func (d *Daemon) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	v, err := d.app.LatestVersion(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, VersionResponse{Version: &v}, http.StatusOK)
}

func (d *Daemon) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	ok, err := d.app.CheckUpdateAvailable(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, UpdateResponse{UpdateAvailable: ok}, http.StatusOK)
}

// handleDownload streams progress as NDJSON. Once the stream has started the
// status is fixed at 200, so failures arrive as a final error line.
func (d *Daemon) handleDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	send := func(line DownloadLine) {
		if err := enc.Encode(line); err != nil {
			return
		}
		_ = rc.Flush()
	}

	version, err := d.app.Download(r.Context(), func(p installer.Progress) {
		send(DownloadLine{Message: p.Message, Percent: p.Percent})
	})
	if err != nil {
		send(DownloadLine{Done: true, Error: err.Error()})
		return
	}
	send(DownloadLine{Done: true, Percent: 100, Version: version})
}
