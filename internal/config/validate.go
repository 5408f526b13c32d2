package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateUnits(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.BaseDelayMS <= 0 {
		return errors.New("client.base_delay_ms must be positive")
	}
	if c.Client.MaxDelayMS < c.Client.BaseDelayMS {
		return errors.New("client.max_delay_ms must be at least client.base_delay_ms")
	}
	if c.Client.JitterFactor < 0 || c.Client.JitterFactor > 1 {
		return errors.New("client.jitter_factor must be between 0 and 1")
	}
	if c.Client.MaxAttempts < 0 {
		return errors.New("client.max_attempts must not be negative")
	}
	if c.Client.HeartbeatIntervalMS < 0 {
		return errors.New("client.heartbeat_interval_ms must not be negative")
	}
	if c.Client.HeartbeatIntervalMS > 0 && c.Client.StaleThresholdMS < c.Client.HeartbeatIntervalMS {
		return errors.New("client.stale_threshold_ms must be at least client.heartbeat_interval_ms")
	}
	if c.Client.RequestTimeoutMS < 0 {
		return errors.New("client.request_timeout_ms must not be negative")
	}
	if c.Client.WriteWaitMS < 0 {
		return errors.New("client.write_wait_ms must not be negative")
	}
	if c.Client.ReadLimit < 0 {
		return errors.New("client.read_limit must not be negative")
	}
	if c.Client.QueueCapacity < 0 {
		return errors.New("client.queue_capacity must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateUnits() error {
	seen := make(map[string]struct{}, len(c.Units))
	for i, u := range c.Units {
		if u.ID == "" {
			return fmt.Errorf("units[%d].id must be set", i)
		}
		if _, ok := seen[u.ID]; ok {
			return fmt.Errorf("units[%d].id %q is declared twice", i, u.ID)
		}
		seen[u.ID] = struct{}{}

		parsed, err := url.ParseRequestURI(u.URL)
		if err != nil {
			return fmt.Errorf("units[%d].url: %w", i, err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("units[%d].url must use ws or wss, got %q", i, parsed.Scheme)
		}
	}
	return nil
}
