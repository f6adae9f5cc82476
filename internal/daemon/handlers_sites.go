//go:build unix

package daemon

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/KONFeature/wordforge/internal/project"
	"github.com/KONFeature/wordforge/internal/registry"
)

// Request/Response types

type ListSitesResponse struct {
	Sites []registry.Site `json:"sites"`
}

type SiteResponse struct {
	Site *registry.Site `json:"site"`
}

type SetActiveRequest struct {
	ID string `json:"id"`
}

type ConnectRequest struct {
	SiteURL string `json:"site_url"`
	Token   string `json:"token"`
}

type RefreshRequest struct {
	SiteID  string `json:"site_id,omitempty"`
	Restart bool   `json:"restart"`
}

type RefreshResponse struct {
	Hash string `json:"hash"`
}

type FolderResponse struct {
	Path string `json:"path"`
}

type AgentsResponse struct {
	Agents []project.Agent `json:"agents"`
}

// Handler methods

func (d *Daemon) handleListSites(w http.ResponseWriter, r *http.Request) {
	list := d.app.ListSites()
	if list == nil {
		list = []registry.Site{}
	}
	writeJSON(w, ListSitesResponse{Sites: list}, http.StatusOK)
}

func (d *Daemon) handleActiveSite(w http.ResponseWriter, r *http.Request) {
	var resp SiteResponse
	if site, ok := d.app.ActiveSite(); ok {
		resp.Site = &site
	}
	writeJSON(w, resp, http.StatusOK)
}

func (d *Daemon) handleSetActiveSite(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, r, err)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := d.app.SetActiveSite(req.ID); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleConnectSite(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, r, err)
		return
	}
	req.SiteURL = strings.TrimSpace(req.SiteURL)
	if req.SiteURL == "" || req.Token == "" {
		writeError(w, "site_url and token are required", http.StatusBadRequest)
		return
	}

	site, err := d.app.ConnectSite(r.Context(), req.SiteURL, req.Token)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sites/"+site.ID)
	writeJSON(w, SiteResponse{Site: &site}, http.StatusCreated)
}

func (d *Daemon) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	site, err := d.app.RemoveSite(r.PathValue("id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, SiteResponse{Site: &site}, http.StatusOK)
}

func (d *Daemon) handleCheckConfig(w http.ResponseWriter, r *http.Request) {
	status, err := d.app.CheckConfigUpdate(r.Context(), r.URL.Query().Get("site_id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, status, http.StatusOK)
}

func (d *Daemon) handleRefreshConfig(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, r, err)
		return
	}
	hash, err := d.app.RefreshSiteConfig(r.Context(), req.SiteID, req.Restart)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, RefreshResponse{Hash: hash}, http.StatusOK)
}

func (d *Daemon) handleSiteFolder(w http.ResponseWriter, r *http.Request) {
	dir, err := d.app.SiteFolder(r.PathValue("id"))
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, FolderResponse{Path: dir}, http.StatusOK)
}

func (d *Daemon) handleSiteAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := d.app.SiteAgents(r.PathValue("id"))
	if err != nil {
		d.fail(w, r, fmt.Errorf("failed to list agents: %w", err))
		return
	}
	if agents == nil {
		agents = []project.Agent{}
	}
	writeJSON(w, AgentsResponse{Agents: agents}, http.StatusOK)
}
