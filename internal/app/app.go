// Package app sequences the host's components into the commands the daemon
// exposes. It never holds the registry and the supervisor at the same time:
// every command runs as separate read, process and write phases.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/deeplink"
	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/installer"
	"github.com/KONFeature/wordforge/internal/sites"
	"github.com/KONFeature/wordforge/internal/supervisor"
)

// Sidecar is the process lifecycle the app drives.
type Sidecar interface {
	Start(ctx context.Context, corsOrigin, projectDir string) (int, error)
	Stop() error
	Port() (int, bool)
	Status() supervisor.Status
}

// Installer manages the sidecar binary on disk.
type Installer interface {
	InstalledVersion() (string, error)
	LatestVersion(ctx context.Context) (string, error)
	CheckUpdateAvailable(ctx context.Context) (bool, error)
	Download(ctx context.Context, progress installer.ProgressFunc) (string, error)
}

type App struct {
	sidecar   Sidecar
	installer Installer
	sites     *sites.Service
	guard     *deeplink.Guard
	bus       *events.Bus
	logger    *zap.SugaredLogger

	// background tracks idle-shutdown stops so Shutdown can wait for them.
	// closed is set by Shutdown; no stop is added to background afterwards.
	mu         sync.Mutex
	closed     bool
	background sync.WaitGroup
}

type Options struct {
	Sidecar   Sidecar
	Installer Installer
	Sites     *sites.Service
	Guard     *deeplink.Guard
	Bus       *events.Bus
	Logger    *zap.SugaredLogger
}

func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Guard == nil {
		opts.Guard = deeplink.NewGuard("")
	}
	return &App{
		sidecar:   opts.Sidecar,
		installer: opts.Installer,
		sites:     opts.Sites,
		guard:     opts.Guard,
		bus:       opts.Bus,
		logger:    opts.Logger,
	}
}

func (a *App) Events() *events.Bus { return a.bus }

// Shutdown stops the sidecar on host exit. Failures are logged only.
func (a *App) Shutdown() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.background.Wait()
	if err := a.sidecar.Stop(); err != nil {
		a.logger.Warnw("failed to stop sidecar on exit", "error", err)
	}
}
