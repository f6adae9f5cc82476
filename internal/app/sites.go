package app

import (
	"context"

	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/project"
	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/sites"
)

func (a *App) ListSites() []registry.Site { return a.sites.Registry().List() }

func (a *App) ActiveSite() (registry.Site, bool) { return a.sites.Registry().Active() }

func (a *App) SetActiveSite(id string) error { return a.sites.Registry().SetActive(id) }

func (a *App) ConnectSite(ctx context.Context, siteURL, token string) (registry.Site, error) {
	return a.sites.Connect(ctx, siteURL, token)
}

// RemoveSite unregisters site id. Removing the active site stops the
// sidecar first, since it serves that site's project.
func (a *App) RemoveSite(id string) (registry.Site, error) {
	if active, ok := a.sites.Registry().Active(); ok && active.ID == id {
		if err := a.sidecar.Stop(); err != nil {
			a.logger.Warnw("failed to stop sidecar while removing active site", "site_id", id, "error", err)
		}
	}
	return a.sites.Remove(id)
}

func (a *App) CheckConfigUpdate(ctx context.Context, id string) (sites.SyncStatus, error) {
	return a.sites.CheckConfigUpdate(ctx, id)
}

// RefreshSiteConfig pulls the config of site id (or the active site). With
// restart set, a running sidecar is stopped around the refresh and started
// again for the active site afterwards.
func (a *App) RefreshSiteConfig(ctx context.Context, id string, restart bool) (string, error) {
	site, err := a.sites.Resolve(id)
	if err != nil {
		return "", err
	}

	wasRunning := false
	if restart {
		if _, ok := a.sidecar.Port(); ok {
			wasRunning = true
			if err := a.sidecar.Stop(); err != nil {
				return "", err
			}
		}
	}

	hash, err := a.sites.Refresh(ctx, site.ID)
	if err != nil {
		return "", err
	}

	if wasRunning {
		if _, err := a.StartSidecar(ctx); err != nil {
			return "", err
		}
	}

	a.bus.Publish(events.TopicConfigUpdated, hash)
	return hash, nil
}

func (a *App) SiteFolder(id string) (string, error) { return a.sites.Folder(id) }

func (a *App) SiteAgents(id string) ([]project.Agent, error) { return a.sites.Agents(id) }
