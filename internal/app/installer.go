package app

import (
	"context"

	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/installer"
)

func (a *App) InstalledVersion() (string, error) { return a.installer.InstalledVersion() }

func (a *App) LatestVersion(ctx context.Context) (string, error) {
	return a.installer.LatestVersion(ctx)
}

func (a *App) CheckUpdateAvailable(ctx context.Context) (bool, error) {
	return a.installer.CheckUpdateAvailable(ctx)
}

// Download installs the latest sidecar release. Every progress step is
// published on the bus and handed to progress when it is non-nil.
func (a *App) Download(ctx context.Context, progress installer.ProgressFunc) (string, error) {
	version, err := a.installer.Download(ctx, func(p installer.Progress) {
		a.bus.Publish(events.TopicDownloadProgress, p)
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		a.logger.Warnw("sidecar download failed", "error", err)
		return "", err
	}
	return version, nil
}
