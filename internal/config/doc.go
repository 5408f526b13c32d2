// Package config loads, normalizes, and validates dspctl configuration data.
//
// It supplies defaults matching the client library, reads TOML files and
// honours the DSPCTL_URL environment fallback when no unit is configured.
// Durations are expressed in milliseconds so files stay plain integers.
//
// Always obtain settings through this package so the CLI hands sanitized
// values to dspclient.WithSettings.
package config
