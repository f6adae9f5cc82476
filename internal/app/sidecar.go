package app

import (
	"context"

	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/supervisor"
)

// StartSidecar launches the sidecar for the active site, if any, and tells
// that site where to reach it.
func (a *App) StartSidecar(ctx context.Context) (int, error) {
	reg := a.sites.Registry()
	deviceID := reg.DeviceID()
	active, hasActive := reg.Active()

	port, err := a.startFor(ctx, active, hasActive)
	if err != nil {
		return 0, err
	}
	if hasActive {
		a.pushEndpoint(ctx, active, port, deviceID)
	}
	return port, nil
}

func (a *App) startFor(ctx context.Context, site registry.Site, ok bool) (int, error) {
	var cors, dir string
	if ok {
		cors, dir = site.URL, site.ProjectDir
	}
	return a.sidecar.Start(ctx, cors, dir)
}

func (a *App) pushEndpoint(ctx context.Context, site registry.Site, port int, deviceID string) {
	if err := a.sites.PushLocalEndpoint(ctx, site, port, deviceID); err != nil {
		a.logger.Warnw("failed to push local endpoint to site", "site_id", site.ID, "port", port, "error", err)
	}
}

func (a *App) StopSidecar() error { return a.sidecar.Stop() }

func (a *App) SidecarPort() (int, bool) { return a.sidecar.Port() }

func (a *App) SidecarStatus() supervisor.Status { return a.sidecar.Status() }

// IdleShutdown stops the sidecar in the background. The returned channel
// closes once the stop has finished; a failed stop is only logged. After
// Shutdown has begun it does nothing and returns a closed channel.
func (a *App) IdleShutdown() <-chan struct{} {
	done := make(chan struct{})
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		close(done)
		a.logger.Debugw("idle shutdown ignored, host is shutting down")
		return done
	}
	a.background.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.background.Done()
		defer close(done)
		a.logger.Infow("idle shutdown requested, stopping sidecar")
		if err := a.sidecar.Stop(); err != nil {
			a.logger.Warnw("failed to stop sidecar on idle shutdown", "error", err)
		}
	}()
	return done
}
