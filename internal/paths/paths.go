package paths

import (
	"os"
	"path/filepath"
)

const appName = "wordforge"

func DefaultRuntimeDir() string {
	if x := os.Getenv("XDG_RUNTIME_DIR"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// DefaultDataDir mirrors the platform's local data directory (XDG_DATA_HOME
// on linux) with the application name appended.
func DefaultDataDir() string {
	if x := os.Getenv("XDG_DATA_HOME"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", appName)
}

func DefaultConfigDir() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

func DefaultSocketPath() string { return filepath.Join(DefaultRuntimeDir(), "daemon.sock") }
func DefaultPIDPath() string    { return filepath.Join(DefaultRuntimeDir(), "daemon.pid") }

// Layout resolves every on-disk location below a single data directory.
type Layout struct {
	DataDir string
}

func NewLayout(dataDir string) Layout {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return Layout{DataDir: dataDir}
}

func (l Layout) RegistryFile() string { return filepath.Join(l.DataDir, ".sites.json") }
func (l Layout) SitesRoot() string    { return filepath.Join(l.DataDir, "sites") }

// InstallDir holds the sidecar binary plus its .version and .port files.
func (l Layout) InstallDir() string  { return filepath.Join(l.DataDir, "opencode") }
func (l Layout) VersionFile() string { return filepath.Join(l.InstallDir(), ".version") }
func (l Layout) PortFile() string    { return filepath.Join(l.InstallDir(), ".port") }

// StateDir is the root of the sidecar's private XDG hierarchy.
func (l Layout) StateDir() string { return filepath.Join(l.DataDir, "opencode-state") }

// StorageDir is where the sidecar keeps per-project records and sessions.
func (l Layout) StorageDir() string { return filepath.Join(l.StateDir(), "data", "storage") }

func (l Layout) LogDir() string { return filepath.Join(l.DataDir, "logs") }
