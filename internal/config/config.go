package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/KONFeature/wordforge/internal/paths"
)

// Config is the host configuration. Every field has a default so a missing
// config file is not an error.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	SocketPath string `mapstructure:"socket_path"`
	PIDFile    string `mapstructure:"pid_file"`

	Release  ReleaseConfig  `mapstructure:"release"`
	Sidecar  SidecarConfig  `mapstructure:"sidecar"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DeepLink DeepLinkConfig `mapstructure:"deeplink"`
	Log      LogConfig      `mapstructure:"log"`
}

type ReleaseConfig struct {
	APIURL string `mapstructure:"api_url"`
	Repo   string `mapstructure:"repo"`
}

type SidecarConfig struct {
	ReadyAttempts int           `mapstructure:"ready_attempts"`
	ReadyInterval time.Duration `mapstructure:"ready_interval"`
	StopGrace     time.Duration `mapstructure:"stop_grace"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type DeepLinkConfig struct {
	Scheme string `mapstructure:"scheme"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

const envPrefix = "WORDFORGE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", paths.DefaultDataDir())
	v.SetDefault("socket_path", paths.DefaultSocketPath())
	v.SetDefault("pid_file", paths.DefaultPIDPath())
	v.SetDefault("release.api_url", "https://api.github.com")
	v.SetDefault("release.repo", "sst/opencode")
	v.SetDefault("sidecar.ready_attempts", 30)
	v.SetDefault("sidecar.ready_interval", 500*time.Millisecond)
	v.SetDefault("sidecar.stop_grace", 2*time.Second)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("deeplink.scheme", "wordforge")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
}

// Load reads configuration from file (explicit path, or config.yaml in the
// default config directory) and WORDFORGE_* environment variables.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Sidecar.ReadyAttempts < 1 {
		return fmt.Errorf("sidecar.ready_attempts must be at least 1, got %d", c.Sidecar.ReadyAttempts)
	}
	if c.Sidecar.ReadyInterval <= 0 {
		return fmt.Errorf("sidecar.ready_interval must be positive")
	}
	if c.DeepLink.Scheme == "" {
		return fmt.Errorf("deeplink.scheme must not be empty")
	}
	if !filepath.IsAbs(c.DataDir) {
		abs, err := filepath.Abs(c.DataDir)
		if err != nil {
			return fmt.Errorf("invalid data_dir %q: %w", c.DataDir, err)
		}
		c.DataDir = abs
	}
	return nil
}

func (c *Config) Layout() paths.Layout { return paths.NewLayout(c.DataDir) }

// EnsureDirs creates the data directory tree the host writes into.
func (c *Config) EnsureDirs() error {
	l := c.Layout()
	for _, dir := range []string{l.DataDir, l.SitesRoot(), l.InstallDir(), l.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
