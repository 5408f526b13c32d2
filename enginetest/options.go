package enginetest

import (
	"log/slog"
	"time"
)

// OptionModifier defines a function type to modify server options
type OptionModifier func(*options)

// WithPingInterval sets the interval between pings to the client, 0 disables pings
func WithPingInterval(d time.Duration) OptionModifier {
	return func(o *options) {
		o.pingInterval = d
	}
}

// WithLogger allows passing a custom logger for the fake engine
// @see https://pkg.go.dev/log/slog
func WithLogger(l *slog.Logger) OptionModifier {
	return func(o *options) {
		o.logger = l
	}
}

// WithReadLimit sets the maximum size in bytes of a frame read from the client
func WithReadLimit(n int64) OptionModifier {
	return func(o *options) {
		o.readLimit = n
	}
}

func defaultOptions() options {
	return options{
		writeWait: 1 * time.Second,
		logger:    slog.New(slog.DiscardHandler),
	}
}

type options struct {
	// logger for logging server events
	logger *slog.Logger

	// writeWait is the time allowed to write a message to the peer
	writeWait time.Duration

	// pingInterval is the interval between pings to the peer
	pingInterval time.Duration

	// the maximum size in bytes for a message read from the peer
	readLimit int64
}
