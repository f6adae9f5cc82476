//go:build unix

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/app"
	"github.com/KONFeature/wordforge/internal/config"
	"github.com/KONFeature/wordforge/internal/deeplink"
	"github.com/KONFeature/wordforge/internal/events"
	"github.com/KONFeature/wordforge/internal/installer"
	"github.com/KONFeature/wordforge/internal/limits"
	"github.com/KONFeature/wordforge/internal/project"
	"github.com/KONFeature/wordforge/internal/registry"
	"github.com/KONFeature/wordforge/internal/sites"
	"github.com/KONFeature/wordforge/internal/supervisor"
	"github.com/KONFeature/wordforge/internal/wordpress"
)

// ensureParentDir creates the parent directory of path, owner-only.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	_ = os.Chmod(dir, 0o700)
	return nil
}

// removeSocketIfExists removes path only if it is a socket.
func removeSocketIfExists(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if fi.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("refusing to remove non-socket path: %s", path)
}

// Daemon is the long-running host. It owns the sidecar process and the site
// registry and serves the command API on a unix socket.
type Daemon struct {
	socketPath string
	pidFile    string
	listener   net.Listener
	server     *http.Server
	registry   *registry.Registry
	app        *app.App
	logger     *zap.SugaredLogger
	httpClient *http.Client

	startTime time.Time
}

// New wires every component from cfg. Nothing is started until Start.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	layout := cfg.Layout()

	reg, err := registry.New(layout.RegistryFile(), logger.Named("registry"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	remoteClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	bus := events.New(logger.Named("events"))

	inst := installer.New(installer.Config{
		InstallDir: layout.InstallDir(),
		APIURL:     cfg.Release.APIURL,
		Repo:       cfg.Release.Repo,
		// Release archives are large; the download is bounded by its ctx.
		HTTPClient: &http.Client{},
		Logger:     logger.Named("installer"),

		MetadataTimeout: cfg.HTTP.Timeout,
	})

	sup := supervisor.New(supervisor.Config{
		Binary:        inst,
		PortFile:      layout.PortFile(),
		StateDir:      layout.StateDir(),
		ReadyAttempts: cfg.Sidecar.ReadyAttempts,
		ReadyInterval: cfg.Sidecar.ReadyInterval,
		StopGrace:     cfg.Sidecar.StopGrace,
		Bus:           bus,
		Logger:        logger.Named("supervisor"),
	})

	svc := sites.NewService(
		reg,
		wordpress.NewClient(remoteClient, logger.Named("wordpress")),
		project.NewManager(layout.SitesRoot(), layout.StorageDir(), logger.Named("project")),
		logger.Named("sites"),
	)

	tr := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var nd net.Dialer
			return nd.DialContext(ctx, "unix", cfg.SocketPath)
		},
	}

	return &Daemon{
		socketPath: cfg.SocketPath,
		pidFile:    cfg.PIDFile,
		registry:   reg,
		app: app.New(app.Options{
			Sidecar:   sup,
			Installer: inst,
			Sites:     svc,
			Guard:     deeplink.NewGuard(cfg.DeepLink.Scheme),
			Bus:       bus,
			Logger:    logger.Named("app"),
		}),
		logger:     logger,
		httpClient: &http.Client{Transport: tr, Timeout: 2 * time.Second},
		startTime:  time.Now().UTC(),
	}, nil
}

// Start runs the daemon in the foreground until SIGTERM or SIGINT. Deep
// links the host was launched with are handled once the API is up.
func (d *Daemon) Start(deepLinks []string) error {
	if d.IsRunning() {
		pid, _ := d.readPIDFile()
		return fmt.Errorf("daemon already running (PID: %d)", pid)
	}

	return d.startForeground(deepLinks)
}

func (d *Daemon) startForeground(deepLinks []string) error {
	if err := ensureParentDir(d.socketPath); err != nil {
		return fmt.Errorf("failed to prepare socket directory: %w", err)
	}

	if err := removeSocketIfExists(d.socketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	d.listener = listener

	if err := os.Chmod(d.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone, err := d.registry.Watch(ctx)
	if err != nil {
		d.logger.Warnw("registry changes made outside the daemon will not be picked up", "error", err)
	}

	d.server = &http.Server{
		Handler:     d.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: sidecar starts, downloads and event streams run
		// far longer than any fixed bound.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Serve(listener)
	}()
	d.logger.Infow("wordforge daemon started", "pid", os.Getpid(), "socket", d.socketPath)
	fmt.Printf("WordForge daemon started (PID: %d)\n", os.Getpid())
	fmt.Printf("Socket: %s\n", d.socketPath)

	d.app.HandleDeepLinks(ctx, deepLinks)

	select {
	case sig := <-sigChan:
		d.logger.Infow("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			d.logger.Errorw("server error", "error", err)
		}
	}

	d.shutdown(cancel)
	if watchDone != nil {
		<-watchDone
	}
	return nil
}

func (d *Daemon) Stop() error {
	pid, err := d.readPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("daemon not running")
		}
		return fmt.Errorf("failed reading pidfile: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// The daemon stops the sidecar before exiting, which takes up to its
	// stop grace period.
	for i := 0; i < 100; i++ {
		if !d.IsRunning() {
			fmt.Println("WordForge daemon stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("daemon did not stop gracefully")
}

func (d *Daemon) GetStatus() (*StatusInfo, error) {
	info := &StatusInfo{
		SocketPath: d.socketPath,
	}

	pid, err := d.readPIDFile()
	if err != nil {
		return info, nil
	}

	info.PID = pid

	if !isProcessAlive(pid) {
		// Stale PID file
		return info, nil
	}

	health, err := d.getHealth()
	if err != nil {
		info.ErrorMessage = err.Error()
		return info, nil
	}

	info.Running = true
	info.Uptime = time.Duration(health.Uptime * float64(time.Second))
	info.Sidecar = health.Sidecar
	return info, nil
}

func (d *Daemon) IsRunning() bool {
	pid, err := d.readPIDFile()
	if err != nil {
		return false
	}

	if !isProcessAlive(pid) {
		return false
	}

	// Protects against PID reuse.
	if _, err := d.getHealth(); err != nil {
		return false
	}

	return true
}

func (d *Daemon) shutdown(cancel context.CancelFunc) {
	if d.server != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		// Streams hold requests open until their base context is cancelled.
		cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warnw("server shutdown error", "error", err)
		}
	}

	d.app.Shutdown()

	if d.httpClient != nil {
		d.httpClient.CloseIdleConnections()
	}

	if d.listener != nil {
		d.listener.Close()
	}

	removeSocketIfExists(d.socketPath)
	os.Remove(d.pidFile)
	d.logger.Infow("wordforge daemon stopped")
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()

	if err := ensureParentDir(d.pidFile); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// O_EXCL so two daemons never both believe they own the file.
	for {
		f, err := os.OpenFile(d.pidFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			defer f.Close()
			_, err = f.WriteString(strconv.Itoa(pid))
			return err
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create PID file: %w", err)
		}
		if oldPID, err2 := d.readPIDFile(); err2 == nil && isProcessAlive(oldPID) {
			return fmt.Errorf("daemon already running (PID: %d)", oldPID)
		}
		if err := os.Remove(d.pidFile); err != nil {
			return fmt.Errorf("stale pidfile exists and cannot remove: %w", err)
		}
	}
}

func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func (d *Daemon) readPIDFile() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(data)))
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  float64           `json:"uptime"`
	Sidecar supervisor.Status `json:"sidecar"`
}

type StatusInfo struct {
	Running      bool
	PID          int
	SocketPath   string
	Uptime       time.Duration
	Sidecar      supervisor.Status
	ErrorMessage string // process exists but does not answer
}

func (d *Daemon) getHealth() (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health returned HTTP %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, limits.JSON)).Decode(&health); err != nil {
		return nil, err
	}

	return &health, nil
}
