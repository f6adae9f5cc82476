package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KONFeature/wordforge/internal/deeplink"
	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/installer"
	"github.com/KONFeature/wordforge/internal/project"
	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/sites"
	"github.com/KONFeature/wordforge/internal/supervisor"
	"github.com/KONFeature/wordforge/internal/wordpress"
	"github.com/KONFeature/wordforge/internal/wordpress/wptest"
)

type startCall struct{ cors, dir string }

type fakeSidecar struct {
	mu      sync.Mutex
	port    int
	running bool
	starts  []startCall
	stops   int
	stopErr error
}

func (f *fakeSidecar) Start(_ context.Context, cors, dir string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return 0, supervisor.ErrAlreadyRunning
	}
	f.starts = append(f.starts, startCall{cors, dir})
	f.running = true
	return f.port, nil
}

func (f *fakeSidecar) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return f.stopErr
}

func (f *fakeSidecar) Port() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port, f.running
}

func (f *fakeSidecar) Status() supervisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return supervisor.Status{State: supervisor.StateRunning}
	}
	return supervisor.Status{State: supervisor.StateStopped}
}

type fakeInstaller struct {
	steps []installer.Progress
	err   error
}

func (f *fakeInstaller) InstalledVersion() (string, error) { return "v1.0.0", nil }
func (f *fakeInstaller) LatestVersion(context.Context) (string, error) {
	return "v1.1.0", nil
}
func (f *fakeInstaller) CheckUpdateAvailable(context.Context) (bool, error) { return true, nil }
func (f *fakeInstaller) Download(_ context.Context, progress installer.ProgressFunc) (string, error) {
	for _, p := range f.steps {
		progress(p)
	}
	if f.err != nil {
		return "", f.err
	}
	return "v1.1.0", nil
}

type fixture struct {
	app      *App
	sidecar  *fakeSidecar
	reg      *registry.Registry
	bus      *events.Bus
	site     *wptest.Site
	observed *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	data := t.TempDir()
	core, observed := observer.New(zapcore.WarnLevel)
	logger := zap.New(core).Sugar()

	reg, err := registry.New(filepath.Join(data, ".sites.json"), logger)
	require.NoError(t, err)
	projects := project.NewManager(filepath.Join(data, "sites"), filepath.Join(data, "storage"), logger)
	svc := sites.NewService(reg, wordpress.NewClient(nil, logger), projects, logger)

	bundle := wptest.Bundle(t, map[string]string{"opencode.json": `{}`})
	sc := &fakeSidecar{port: 4242}
	bus := events.New(logger)

	return &fixture{
		app: New(Options{
			Sidecar:   sc,
			Installer: &fakeInstaller{},
			Sites:     svc,
			Guard:     deeplink.NewGuard(""),
			Bus:       bus,
			Logger:    logger,
		}),
		sidecar:  sc,
		reg:      reg,
		bus:      bus,
		site:     wptest.New(t, "tok", "Shop", bundle),
		observed: observed,
	}
}

func (f *fixture) connect(t *testing.T) registry.Site {
	t.Helper()
	site, err := f.app.ConnectSite(context.Background(), f.site.URL(), "tok")
	require.NoError(t, err)
	return site
}

func TestStartSidecarWithoutActiveSite(t *testing.T) {
	f := newFixture(t)

	port, err := f.app.StartSidecar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4242, port)
	assert.Equal(t, []startCall{{}}, f.sidecar.starts)
	assert.Empty(t, f.site.PushedSettings())
}

func TestStartSidecarPushesEndpoint(t *testing.T) {
	f := newFixture(t)
	site := f.connect(t)

	port, err := f.app.StartSidecar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []startCall{{site.URL, site.ProjectDir}}, f.sidecar.starts)

	pushed := f.site.PushedSettings()
	require.Len(t, pushed, 1)
	assert.Equal(t, port, pushed[0].Port)
	assert.Equal(t, f.reg.DeviceID(), pushed[0].DeviceID)
	assert.Equal(t, project.ID(site.ProjectDir), pushed[0].ProjectID)

	_, err = f.app.StartSidecar(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrAlreadyRunning)
}

func TestStartSidecarPushFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.site.Server.Close()

	port, err := f.app.StartSidecar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4242, port)
	assert.Equal(t, 1, f.observed.FilterMessage("failed to push local endpoint to site").Len())
}

func TestRemoveActiveSiteStopsSidecar(t *testing.T) {
	f := newFixture(t)
	site := f.connect(t)
	_, err := f.app.StartSidecar(context.Background())
	require.NoError(t, err)

	removed, err := f.app.RemoveSite(site.ID)
	require.NoError(t, err)
	assert.Equal(t, site.ID, removed.ID)
	assert.Equal(t, 1, f.sidecar.stops)
	assert.Empty(t, f.app.ListSites())

	_, err = f.app.RemoveSite(site.ID)
	assert.ErrorIs(t, err, registry.ErrSiteNotFound)
	assert.Equal(t, 1, f.sidecar.stops)
}

func TestRefreshSiteConfig(t *testing.T) {
	f := newFixture(t)
	site := f.connect(t)
	sub := f.bus.Subscribe(4, events.TopicConfigUpdated)
	defer sub.Close()

	t.Run("without restart", func(t *testing.T) {
		f.site.SetHash("hash-2")
		hash, err := f.app.RefreshSiteConfig(context.Background(), "", false)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", hash)
		assert.Zero(t, f.sidecar.stops)

		ev := <-sub.C()
		assert.Equal(t, "hash-2", ev.Payload)
	})

	t.Run("restart only when running", func(t *testing.T) {
		f.site.SetHash("hash-3")
		_, err := f.app.RefreshSiteConfig(context.Background(), site.ID, true)
		require.NoError(t, err)
		assert.Zero(t, f.sidecar.stops)
		assert.Empty(t, f.sidecar.starts)
		<-sub.C()
	})

	t.Run("restarts running sidecar", func(t *testing.T) {
		_, err := f.app.StartSidecar(context.Background())
		require.NoError(t, err)

		f.site.SetHash("hash-4")
		hash, err := f.app.RefreshSiteConfig(context.Background(), site.ID, true)
		require.NoError(t, err)
		assert.Equal(t, "hash-4", hash)
		assert.Equal(t, 1, f.sidecar.stops)
		assert.Len(t, f.sidecar.starts, 2)
		assert.Len(t, f.site.PushedSettings(), 2)

		stored, err := f.reg.Get(site.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-4", stored.ConfigHash)
		<-sub.C()
	})

	t.Run("failure publishes nothing", func(t *testing.T) {
		f.site.FailConfig(500)
		_, err := f.app.RefreshSiteConfig(context.Background(), site.ID, false)
		require.Error(t, err)
		select {
		case ev := <-sub.C():
			t.Fatalf("unexpected event %v", ev)
		default:
		}
	})
}

func TestRefreshWithoutActiveSite(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.RefreshSiteConfig(context.Background(), "", true)
	assert.ErrorIs(t, err, sites.ErrNoActiveSite)
}

func TestIdleShutdown(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.StartSidecar(context.Background())
	require.NoError(t, err)
	f.sidecar.stopErr = errors.New("already gone")

	select {
	case <-f.app.IdleShutdown():
	case <-time.After(5 * time.Second):
		t.Fatal("idle shutdown did not finish")
	}
	_, ok := f.app.SidecarPort()
	assert.False(t, ok)
	assert.Equal(t, 1, f.observed.FilterMessage("failed to stop sidecar on idle shutdown").Len())

	f.app.Shutdown()
	assert.Equal(t, 2, f.sidecar.stops)
}

func TestIdleShutdownAfterShutdownIsNoop(t *testing.T) {
	f := newFixture(t)
	f.app.Shutdown()
	require.Equal(t, 1, f.sidecar.stops)

	select {
	case <-f.app.IdleShutdown():
	case <-time.After(time.Second):
		t.Fatal("idle shutdown after exit should return a closed channel")
	}
	assert.Equal(t, 1, f.sidecar.stops)
}

func TestIdleShutdownConcurrentWithShutdown(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-f.app.IdleShutdown()
		}()
	}
	f.app.Shutdown()
	wg.Wait()

	f.sidecar.mu.Lock()
	defer f.sidecar.mu.Unlock()
	assert.GreaterOrEqual(t, f.sidecar.stops, 1)
	assert.LessOrEqual(t, f.sidecar.stops, 21)
}

func TestHandleDeepLink(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(4, events.TopicDeepLinkConnect)
	defer sub.Close()

	raw := "wordforge://connect?site=" + f.site.URL() + "&token=tok&name=My%2520Shop"

	res, err := f.app.HandleDeepLink(context.Background(), raw, false)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "My Shop", res.Link.Name)
	ev := <-sub.C()
	assert.Equal(t, res.Link, ev.Payload)

	res, err = f.app.HandleDeepLink(context.Background(), raw, true)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Site)
	assert.Empty(t, f.app.ListSites())

	_, err = f.app.HandleDeepLink(context.Background(), "https://example.com/?token=x&site=y", false)
	assert.ErrorIs(t, err, deeplink.ErrInvalidURL)
}

func TestHandleDeepLinkConnects(t *testing.T) {
	f := newFixture(t)
	raw := "wordforge://connect?site=" + f.site.URL() + "&token=tok"

	res, err := f.app.HandleDeepLink(context.Background(), raw, true)
	require.NoError(t, err)
	require.NotNil(t, res.Site)
	active, ok := f.app.ActiveSite()
	require.True(t, ok)
	assert.Equal(t, res.Site.ID, active.ID)
}

func TestHandleDeepLinksSkipsOtherSchemes(t *testing.T) {
	f := newFixture(t)
	sub := f.bus.Subscribe(4, events.TopicDeepLinkConnect)
	defer sub.Close()

	f.app.HandleDeepLinks(context.Background(), []string{
		"--flag",
		"wordforge://connect?site=https://a.example&token=t1",
		"wordforge://connect?token=missing-site",
	})

	ev := <-sub.C()
	assert.Equal(t, "t1", ev.Payload.(deeplink.Link).Token)
	assert.Equal(t, 1, f.observed.FilterMessage("failed to handle launch deep link").Len())
}

func TestDownloadPublishesProgress(t *testing.T) {
	f := newFixture(t)
	steps := []installer.Progress{{Message: "Fetching release info...", Percent: 0}, {Message: "Download complete!", Percent: 100}}
	f.app.installer = &fakeInstaller{steps: steps}

	var seen []installer.Progress
	version, err := f.app.Download(context.Background(), func(p installer.Progress) { seen = append(seen, p) })
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", version)
	assert.Equal(t, steps, seen)

	published := f.bus.Recent(0, events.TopicDownloadProgress)
	require.Len(t, published, 2)
	assert.Equal(t, steps[1], published[1].Payload)

	f.app.installer = &fakeInstaller{err: installer.ErrNoMatchingAsset}
	_, err = f.app.Download(context.Background(), nil)
	assert.ErrorIs(t, err, installer.ErrNoMatchingAsset)
}
