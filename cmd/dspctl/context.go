package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mickaelvieira/dspclient"
	"github.com/mickaelvieira/dspclient/internal/config"
	"github.com/mickaelvieira/dspclient/internal/logging"
)

type commandContext struct {
	configFlag   *string
	urlFlag      *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	logs *logging.Manager
}

func newCommandContext(configFlag, urlFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		urlFlag:      urlFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}

		if c.urlFlag != nil && strings.TrimSpace(*c.urlFlag) != "" {
			cfg.Units[0].URL = strings.TrimSpace(*c.urlFlag)
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}

		c.logs = logging.NewManager(cmd.ErrOrStderr())
		if err := c.logs.Configure(cfg.Logging); err != nil {
			c.configErr = fmt.Errorf("init logger: %w", err)
			return
		}

		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(component string) *slog.Logger {
	if c.logs == nil {
		return slog.Default().With("component", component)
	}
	return c.logs.Component(component)
}

// unitLogger tags the component logger with the identity of u.
func (c *commandContext) unitLogger(component string, u config.Unit) *slog.Logger {
	if c.logs == nil {
		return slog.Default().With("component", component, logging.UnitAttr(u))
	}
	return c.logs.Unit(component, u)
}

// unit returns the configured unit with the given id, the first one when id is empty.
func (c *commandContext) unit(id string) (config.Unit, error) {
	if c.config == nil {
		return config.Unit{}, fmt.Errorf("configuration not loaded")
	}
	if id == "" {
		return c.config.Units[0], nil
	}
	u, ok := c.config.Unit(id)
	if !ok {
		return config.Unit{}, fmt.Errorf("unknown unit %q", id)
	}
	return u, nil
}

func (c *commandContext) newClient(u config.Unit, metrics *dspclient.Metrics) (*dspclient.Client, error) {
	opts := []dspclient.OptionModifier{
		dspclient.WithSettings(c.config.Settings()),
		dspclient.WithWriteWait(c.config.WriteWait()),
		dspclient.WithReadLimit(c.config.Client.ReadLimit),
		dspclient.WithLogger(c.unitLogger("client", u)),
	}
	if metrics != nil {
		opts = append(opts, dspclient.WithMetrics(metrics))
	}

	client, err := dspclient.NewClient(u.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", u.ID, err)
	}
	return client, nil
}

func (c *commandContext) close() error {
	if c.logs == nil {
		return nil
	}
	return c.logs.Close()
}
