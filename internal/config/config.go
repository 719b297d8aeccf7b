// Package config loads the daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/leandrodaf/midicc/sdk/contracts"
	"gopkg.in/yaml.v3"
)

// Launcher names accepted in Config.Launcher.
const (
	LauncherInProcess = "inprocess"
	LauncherExec      = "exec"
)

// Config holds the midicc daemon configuration.
type Config struct {
	// Control API address, host:port.
	Listen string `yaml:"listen"`

	// Where the user settings (TOML) live.
	SettingsPath string `yaml:"settings_path"`

	Logging LoggingConfig `yaml:"logging"`

	Worker WorkerConfig `yaml:"worker"`

	// Polling interval of status watchers.
	HealthInterval string `yaml:"health_interval"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty logs to stderr
}

// WorkerConfig configures how the worker is run and supervised.
type WorkerConfig struct {
	Launcher     string `yaml:"launcher"` // inprocess, exec
	ProbeEvery   int    `yaml:"probe_every"`
	StartupGrace string `yaml:"startup_grace"`
	StopTimeout  string `yaml:"stop_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:7703",
		SettingsPath: filepath.Join(DefaultConfigDir(), "settings.toml"),
		Logging: LoggingConfig{
			Level: "info",
		},
		Worker: WorkerConfig{
			Launcher:     LauncherExec,
			ProbeEvery:   10,
			StartupGrace: "500ms",
			StopTimeout:  "3s",
		},
		HealthInterval: "1s",
	}
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/midicc or its platform equivalent.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".midicc"
	}
	return filepath.Join(dir, "midicc")
}

// DefaultConfigPath returns the default path to config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("MIDICC_LISTEN"); addr != "" {
		c.Listen = addr
	}
	if level := os.Getenv("MIDICC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("MIDICC_SETTINGS_PATH"); path != "" {
		c.SettingsPath = path
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address not configured")
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("settings_path not configured")
	}
	if _, err := contracts.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch c.Worker.Launcher {
	case LauncherInProcess, LauncherExec:
	default:
		return fmt.Errorf("invalid worker.launcher: %q (valid: %s, %s)", c.Worker.Launcher, LauncherInProcess, LauncherExec)
	}
	if c.Worker.ProbeEvery < 0 {
		return fmt.Errorf("invalid worker.probe_every: %d", c.Worker.ProbeEvery)
	}
	return nil
}

// LogLevel returns the configured level, info if unparseable.
func (c *Config) LogLevel() contracts.LogLevel {
	level, err := contracts.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return contracts.InfoLevel
	}
	return level
}

// GetHealthInterval returns the status polling interval as a duration.
func (c *Config) GetHealthInterval() time.Duration {
	return parseDuration(c.HealthInterval, time.Second)
}

// GetStartupGrace returns how long an exec'd worker must survive to count as started.
func (c *Config) GetStartupGrace() time.Duration {
	return parseDuration(c.Worker.StartupGrace, 500*time.Millisecond)
}

// GetStopTimeout returns how long a worker gets to exit before it is killed.
func (c *Config) GetStopTimeout() time.Duration {
	return parseDuration(c.Worker.StopTimeout, 3*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
