// Package config loads launchpad settings. Environment variables with the
// LAUNCHPAD_ prefix override launchpad.toml, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/blogpad/launchpad/internal/progress/remote"
)

// FileName is the config file looked up in the data directory.
const FileName = "launchpad.toml"

// EnvPrefix prefixes every environment override, e.g. LAUNCHPAD_REMOTE_DSN.
const EnvPrefix = "LAUNCHPAD"

// Config holds all launchpad configuration.
type Config struct {
	// DataDir holds the local database, identity state and config file.
	DataDir string `mapstructure:"data_dir" toml:"data_dir"`

	Local      LocalConfig      `mapstructure:"local" toml:"local"`
	Remote     RemoteConfig     `mapstructure:"remote" toml:"remote"`
	Save       SaveConfig       `mapstructure:"save" toml:"save"`
	Onboarding OnboardingConfig `mapstructure:"onboarding" toml:"onboarding"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Curriculum CurriculumConfig `mapstructure:"curriculum" toml:"curriculum"`
	Logging    LoggingConfig    `mapstructure:"logging" toml:"logging"`
}

// LocalConfig configures the device-local store.
type LocalConfig struct {
	Path string `mapstructure:"path" toml:"path"` // empty: <data_dir>/progress.db
}

// RemoteConfig configures the remote store. An empty driver runs local-only.
type RemoteConfig struct {
	Driver  string `mapstructure:"driver" toml:"driver"` // postgres, sqlite, libsql
	DSN     string `mapstructure:"dsn" toml:"dsn"`
	Timeout string `mapstructure:"timeout" toml:"timeout"`
}

// SaveConfig configures the debounced save path.
type SaveConfig struct {
	Debounce     string `mapstructure:"debounce" toml:"debounce"`
	SavedDisplay string `mapstructure:"saved_display" toml:"saved_display"`
	WriteTimeout string `mapstructure:"write_timeout" toml:"write_timeout"`
}

// OnboardingConfig configures the onboarding gate.
type OnboardingConfig struct {
	Enforce bool `mapstructure:"enforce" toml:"enforce"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port int `mapstructure:"port" toml:"port"`
}

// CurriculumConfig configures the curriculum override directory.
type CurriculumConfig struct {
	Dir string `mapstructure:"dir" toml:"dir"` // empty: <data_dir>/curriculum
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level" toml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" toml:"format"` // json, console
	File       string `mapstructure:"file" toml:"file"`     // empty: stderr only
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
}

// DefaultDataDir returns ~/.launchpad, or .launchpad when there is no home
// directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".launchpad"
	}
	return filepath.Join(home, ".launchpad")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Remote: RemoteConfig{
			Timeout: "10s",
		},
		Save: SaveConfig{
			Debounce:     "1s",
			SavedDisplay: "2s",
			WriteTimeout: "15s",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("data_dir", c.DataDir)
	v.SetDefault("local.path", c.Local.Path)
	v.SetDefault("remote.driver", c.Remote.Driver)
	v.SetDefault("remote.dsn", c.Remote.DSN)
	v.SetDefault("remote.timeout", c.Remote.Timeout)
	v.SetDefault("save.debounce", c.Save.Debounce)
	v.SetDefault("save.saved_display", c.Save.SavedDisplay)
	v.SetDefault("save.write_timeout", c.Save.WriteTimeout)
	v.SetDefault("onboarding.enforce", c.Onboarding.Enforce)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("curriculum.dir", c.Curriculum.Dir)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.file", c.Logging.File)
	v.SetDefault("logging.max_size_mb", c.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
}

// Load reads the configuration. With an empty path launchpad.toml is looked
// up in the data directory and a missing file means defaults. An explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(filepath.Join(v.GetString("data_dir"), FileName))
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// WriteFile writes the configuration as TOML.
func (c *Config) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks drivers, durations and levels.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Remote.Driver != "" {
		if !slices.Contains(remote.Drivers(), c.Remote.Driver) {
			return fmt.Errorf("invalid remote driver: %s (valid: %v)", c.Remote.Driver, remote.Drivers())
		}
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for driver %s", c.Remote.Driver)
		}
	}
	for key, val := range map[string]string{
		"remote.timeout":     c.Remote.Timeout,
		"save.debounce":      c.Save.Debounce,
		"save.saved_display": c.Save.SavedDisplay,
		"save.write_timeout": c.Save.WriteTimeout,
	} {
		if val == "" {
			continue
		}
		if d, err := time.ParseDuration(val); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", key, val)
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %q (valid: json, console)", c.Logging.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	return nil
}

// LocalPath returns the local database path.
func (c *Config) LocalPath() string {
	if c.Local.Path != "" {
		return c.Local.Path
	}
	return filepath.Join(c.DataDir, "progress.db")
}

// IdentityPath returns the identity state file.
func (c *Config) IdentityPath() string {
	return filepath.Join(c.DataDir, "identity.json")
}

// CurriculumDir returns the curriculum override directory.
func (c *Config) CurriculumDir() string {
	if c.Curriculum.Dir != "" {
		return c.Curriculum.Dir
	}
	return filepath.Join(c.DataDir, "curriculum")
}

// ConfigPath returns the default config file location.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, FileName)
}

// GetRemoteTimeout returns the remote call timeout.
func (c *Config) GetRemoteTimeout() time.Duration {
	return parseDuration(c.Remote.Timeout, remote.DefaultTimeout)
}

// GetDebounce returns the save debounce delay.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Save.Debounce, time.Second)
}

// GetSavedDisplay returns how long "saved" is shown.
func (c *Config) GetSavedDisplay() time.Duration {
	return parseDuration(c.Save.SavedDisplay, 2*time.Second)
}

// GetWriteTimeout returns the bound of one debounced write.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Save.WriteTimeout, 15*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
