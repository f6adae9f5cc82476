// Package installer keeps a single current version of the sidecar binary
// under the install directory.
package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	binaryBaseName  = "opencode"
	versionFileName = ".version"
	userAgent       = "wordforge-desktop"

	defaultMetadataTimeout = 30 * time.Second
)

var (
	// ErrNotInstalled is returned when no version marker is present.
	ErrNotInstalled = errors.New("sidecar not installed")
	// ErrUnsupportedPlatform is returned when the host os/arch has no release mapping.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNoMatchingAsset is returned when the latest release has no archive for this platform.
	ErrNoMatchingAsset = errors.New("no release asset for this platform")
	// ErrExtractionFailed wraps archive extraction failures.
	ErrExtractionFailed = errors.New("failed to extract release archive")
)

type Config struct {
	InstallDir string
	// APIURL is the release index base, e.g. https://api.github.com.
	APIURL     string
	Repo       string
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger

	// MetadataTimeout bounds the release index request. Archive downloads
	// are bounded only by their ctx and HTTPClient.
	MetadataTimeout time.Duration

	// GOOS and GOARCH override the running platform.
	GOOS   string
	GOARCH string
}

type Installer struct {
	dir    string
	apiURL string
	repo   string
	http   *http.Client
	logger *zap.SugaredLogger
	goos   string
	goarch string

	metadataTimeout time.Duration
}

func New(cfg Config) *Installer {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = defaultMetadataTimeout
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.GOARCH == "" {
		cfg.GOARCH = runtime.GOARCH
	}
	return &Installer{
		dir:    cfg.InstallDir,
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		repo:   cfg.Repo,
		http:   cfg.HTTPClient,
		logger: cfg.Logger,
		goos:   cfg.GOOS,
		goarch: cfg.GOARCH,

		metadataTimeout: cfg.MetadataTimeout,
	}
}

func (i *Installer) Dir() string { return i.dir }

func (i *Installer) BinaryPath() string {
	name := binaryBaseName
	if i.goos == "windows" {
		name += ".exe"
	}
	return filepath.Join(i.dir, name)
}

func (i *Installer) IsInstalled() bool {
	info, err := os.Stat(i.BinaryPath())
	return err == nil && info.Mode().IsRegular()
}

// InstalledVersion returns the trimmed contents of the version marker.
func (i *Installer) InstalledVersion() (string, error) {
	data, err := os.ReadFile(filepath.Join(i.dir, versionFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotInstalled
		}
		return "", fmt.Errorf("read sidecar version marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// CheckUpdateAvailable reports true when nothing is installed or the
// installed version differs from the latest release tag.
func (i *Installer) CheckUpdateAvailable(ctx context.Context) (bool, error) {
	latest, err := i.LatestVersion(ctx)
	if err != nil {
		return false, err
	}
	installed, err := i.InstalledVersion()
	if errors.Is(err, ErrNotInstalled) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(installed) != strings.TrimSpace(latest), nil
}

func (i *Installer) recordInstalledVersion(version string) error {
	marker := filepath.Join(i.dir, versionFileName)
	tmp := marker + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.TrimSpace(version)), 0o644); err != nil {
		return fmt.Errorf("write sidecar version marker: %w", err)
	}
	if err := os.Rename(tmp, marker); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit sidecar version marker: %w", err)
	}
	return nil
}
