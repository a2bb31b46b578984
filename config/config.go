// Package config implements the config store (spec §6): resolving a
// per-user config directory and loading/saving the YAML document that
// covers every tunable in SPEC_FULL.md's Config section.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

// EnvDirOverride is the environment variable that, when set, takes
// precedence over the platform config directory lookup (spec §6).
const EnvDirOverride = "SIMPLE_SENDER_CONFIG_DIR"

const appName = "simple-sender"
const fileName = "config.yaml"

// StopMode mirrors stream.StopMode without importing the stream package,
// keeping config dependency-free of the runtime components it configures.
type StopMode string

const (
	StopSoftResetOnly   StopMode = "soft-reset-only"
	StopStreamThenReset StopMode = "stop-stream-then-reset"
)

// Config is the full document persisted under the resolved config
// directory, covering every parameter SPEC_FULL.md's Config section
// lists.
type Config struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	RXWindowFloor int `yaml:"rx_window_floor"`
	RXWindowCap   int `yaml:"rx_window_cap"`

	StreamLineThreshold int   `yaml:"stream_line_threshold"`
	StreamByteThreshold int64 `yaml:"stream_byte_threshold"`

	StatusPollIntervalMs int `yaml:"status_poll_interval_ms"`
	HandshakeTimeoutMs   int `yaml:"handshake_timeout_ms"`

	ReconnectInitialBackoffMs int     `yaml:"reconnect_initial_backoff_ms"`
	ReconnectBackoffFactor    float64 `yaml:"reconnect_backoff_factor"`
	ReconnectMaxBackoffMs     int     `yaml:"reconnect_max_backoff_ms"`
	ConsecutiveFailureLimit   int     `yaml:"consecutive_failure_limit"`

	HomingGracePeriodMs int `yaml:"homing_grace_period_ms"`

	StopMode StopMode `yaml:"stop_mode"`
}

// Default returns the documented defaults for every field (spec §4.D/§4.F
// defaults, plus gcode.DefaultLoadOptions' thresholds).
func Default() Config {
	return Config{
		Port:                      "",
		Baud:                      115200,
		RXWindowFloor:             64,
		RXWindowCap:               128,
		StreamLineThreshold:       50_000,
		StreamByteThreshold:       4 << 20,
		StatusPollIntervalMs:      200,
		HandshakeTimeoutMs:        10_000,
		ReconnectInitialBackoffMs: 1_000,
		ReconnectBackoffFactor:    2,
		ReconnectMaxBackoffMs:     30_000,
		ConsecutiveFailureLimit:   3,
		HomingGracePeriodMs:       30_000,
		StopMode:                  StopSoftResetOnly,
	}
}

// Dir resolves the config directory in spec §6's documented precedence:
// SIMPLE_SENDER_CONFIG_DIR, else the platform per-user config directory
// (via go-app-paths), else $HOME, else the OS temp directory.
func Dir() (string, error) {
	if d := os.Getenv(EnvDirOverride); d != "" {
		return d, nil
	}
	scope := gap.NewScope(gap.User, appName)
	if dir, err := scope.ConfigPath(""); err == nil && dir != "" {
		return dir, nil
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "."+appName), nil
	}
	return filepath.Join(os.TempDir(), appName), nil
}

// Load reads and parses the config document from its resolved directory.
// A missing file is not an error: Default() is returned unmodified so
// first-run behaves sensibly.
func Load() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, fmt.Errorf("config: resolving directory: %w", err)
	}
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML under the resolved config directory, creating
// it if necessary.
func Save(cfg Config) error {
	dir, err := Dir()
	if err != nil {
		return fmt.Errorf("config: resolving directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
