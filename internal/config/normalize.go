package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeClient()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.normalizeMetrics()
	c.normalizeUnits()
	return nil
}

func (c *Config) normalizeClient() {
	c.Client.KeepaliveCommand = strings.TrimSpace(c.Client.KeepaliveCommand)
	if c.Client.QueueCapacity == 0 {
		c.Client.QueueCapacity = defaultQueueCapacity
	}
	if c.Client.WriteWaitMS == 0 {
		c.Client.WriteWaitMS = defaultWriteWaitMS
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}

func (c *Config) normalizeUnits() {
	for i := range c.Units {
		c.Units[i].ID = strings.TrimSpace(c.Units[i].ID)
		c.Units[i].URL = strings.TrimSpace(c.Units[i].URL)
	}

	if len(c.Units) > 0 {
		return
	}

	url := defaultUnitURL
	if value, ok := os.LookupEnv("DSPCTL_URL"); ok && strings.TrimSpace(value) != "" {
		url = strings.TrimSpace(value)
	}
	c.Units = []Unit{{ID: defaultUnitID, URL: url}}
}
