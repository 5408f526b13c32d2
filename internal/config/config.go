package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/mickaelvieira/dspclient"
)

//go:embed sample_config.toml
var sampleConfig string

// Client contains the connection tunables shared by every unit.
type Client struct {
	BaseDelayMS         int     `toml:"base_delay_ms"`
	MaxDelayMS          int     `toml:"max_delay_ms"`
	JitterFactor        float64 `toml:"jitter_factor"`
	MaxAttempts         int     `toml:"max_attempts"`
	HeartbeatIntervalMS int     `toml:"heartbeat_interval_ms"` // 0 disables the heartbeat
	StaleThresholdMS    int     `toml:"stale_threshold_ms"`
	RequestTimeoutMS    int     `toml:"request_timeout_ms"`
	WriteWaitMS         int     `toml:"write_wait_ms"`
	ReadLimit           int64   `toml:"read_limit"` // bytes, 0 means unlimited
	QueueCapacity       int     `toml:"queue_capacity"`
	KeepaliveCommand    string  `toml:"keepalive_command"` // empty disables keepalives
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Listen string `toml:"listen"` // empty disables the endpoint
	Path   string `toml:"path"`
}

// Unit is one DSP engine reachable over a websocket.
type Unit struct {
	ID  string `toml:"id"`
	URL string `toml:"url"`
}

// Config encapsulates all configuration values for dspctl.
type Config struct {
	Client  Client  `toml:"client"`
	Logging Logging `toml:"logging"`
	Metrics Metrics `toml:"metrics"`
	Units   []Unit  `toml:"units"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file yields the
// defaults. It returns the resolved path and whether the file exists.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}

	return expanded, true, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Unit returns the unit with the given id.
func (c *Config) Unit(id string) (Unit, bool) {
	for _, u := range c.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// Settings converts the client section into library settings.
func (c *Config) Settings() dspclient.Settings {
	return dspclient.Settings{
		BaseDelay:         millis(c.Client.BaseDelayMS),
		MaxDelay:          millis(c.Client.MaxDelayMS),
		JitterFactor:      c.Client.JitterFactor,
		MaxAttempts:       c.Client.MaxAttempts,
		HeartbeatInterval: millis(c.Client.HeartbeatIntervalMS),
		StaleThreshold:    millis(c.Client.StaleThresholdMS),
		RequestTimeout:    millis(c.Client.RequestTimeoutMS),
		QueueCapacity:     c.Client.QueueCapacity,
		KeepaliveCommand:  c.Client.KeepaliveCommand,
	}
}

// WriteWait returns the time allowed to write a frame.
func (c *Config) WriteWait() time.Duration {
	return millis(c.Client.WriteWaitMS)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
