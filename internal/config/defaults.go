package config

const (
	defaultBaseDelayMS         = 1000
	defaultMaxDelayMS          = 30000
	defaultJitterFactor        = 0.25
	defaultMaxAttempts         = 10
	defaultHeartbeatIntervalMS = 15000
	defaultStaleThresholdMS    = 45000
	defaultRequestTimeoutMS    = 5000
	defaultWriteWaitMS         = 1000
	defaultQueueCapacity       = 100
	defaultKeepaliveCommand    = "GetVersion"
	defaultLogFormat           = "text"
	defaultLogLevel            = "info"
	defaultMetricsPath         = "/metrics"
	defaultUnitID              = "default"
	defaultUnitURL             = "ws://127.0.0.1:1234"
	defaultConfigPath          = "~/.config/dspctl/config.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Client: Client{
			BaseDelayMS:         defaultBaseDelayMS,
			MaxDelayMS:          defaultMaxDelayMS,
			JitterFactor:        defaultJitterFactor,
			MaxAttempts:         defaultMaxAttempts,
			HeartbeatIntervalMS: defaultHeartbeatIntervalMS,
			StaleThresholdMS:    defaultStaleThresholdMS,
			RequestTimeoutMS:    defaultRequestTimeoutMS,
			WriteWaitMS:         defaultWriteWaitMS,
			QueueCapacity:       defaultQueueCapacity,
			KeepaliveCommand:    defaultKeepaliveCommand,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Path: defaultMetricsPath,
		},
	}
}
