package dspclient

import (
	"log/slog"
	"net/http"
	"time"

	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/dspclient/backoff"
	"github.com/mickaelvieira/dspclient/codec"
	"github.com/mickaelvieira/dspclient/queue"
)

type DialerModifier func(*gows.Dialer)
type OptionModifier func(*options)

// Settings gathers the tunables of a client. Start from DefaultSettings and override
// the fields that matter.
type Settings struct {
	// BaseDelay is the reconnection delay of the first attempt
	BaseDelay time.Duration

	// MaxDelay caps the reconnection delay before jitter
	MaxDelay time.Duration

	// JitterFactor is the relative randomization of reconnection delays
	JitterFactor float64

	// MaxAttempts is the number of reconnection attempts before giving up, 0 never retries
	MaxAttempts int

	// HeartbeatInterval is the period of the staleness check, 0 disables it
	HeartbeatInterval time.Duration

	// StaleThreshold is the inbound silence after which the socket is dropped
	StaleThreshold time.Duration

	// RequestTimeout is the default time allowed for a response. 0 disables the
	// timeout, Send then waits on its context alone.
	RequestTimeout time.Duration

	// QueueCapacity bounds the commands kept while disconnected. A non-positive
	// value selects queue.DefaultCapacity.
	QueueCapacity int

	// KeepaliveCommand is sent on quiet links, empty disables it
	KeepaliveCommand string
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	b := backoff.DefaultConfig()

	return Settings{
		BaseDelay:         b.BaseDelay,
		MaxDelay:          b.MaxDelay,
		JitterFactor:      b.JitterFactor,
		MaxAttempts:       b.MaxAttempts,
		HeartbeatInterval: 15 * time.Second,
		StaleThreshold:    45 * time.Second,
		RequestTimeout:    5 * time.Second,
		QueueCapacity:     queue.DefaultCapacity,
		KeepaliveCommand:  "GetVersion",
	}
}

// WithSettings applies every field of s.
func WithSettings(s Settings) OptionModifier {
	return func(o *options) {
		o.backoff = backoff.Config{
			BaseDelay:    s.BaseDelay,
			MaxDelay:     s.MaxDelay,
			JitterFactor: s.JitterFactor,
			MaxAttempts:  s.MaxAttempts,
		}
		o.heartbeatInterval = s.HeartbeatInterval
		o.staleThreshold = s.StaleThreshold
		o.requestTimeout = s.RequestTimeout
		o.queueCapacity = s.QueueCapacity
		o.keepalive = nil
		if s.KeepaliveCommand != "" {
			o.keepalive = codec.Bare(s.KeepaliveCommand)
		}
	}
}

// WithBackoff sets the exponential reconnection delays
func WithBackoff(base, maxDelay time.Duration, jitterFactor float64) OptionModifier {
	return func(o *options) {
		o.backoff.BaseDelay = base
		o.backoff.MaxDelay = maxDelay
		o.backoff.JitterFactor = jitterFactor
	}
}

// WithMaxRetryAttempts sets the maximum number of reconnection attempts
func WithMaxRetryAttempts(attempts int) OptionModifier {
	return func(o *options) {
		o.backoff.MaxAttempts = attempts
	}
}

// WithHeartbeat sets the staleness check period and the silence tolerated before the
// socket is dropped. A zero interval disables the heartbeat.
func WithHeartbeat(interval, stale time.Duration) OptionModifier {
	return func(o *options) {
		o.heartbeatInterval = interval
		o.staleThreshold = stale
	}
}

// WithKeepaliveCommand sets the command probing quiet links, nil disables it
func WithKeepaliveCommand(cmd codec.Command) OptionModifier {
	return func(o *options) {
		o.keepalive = cmd
	}
}

// WithRequestTimeout sets the default time allowed for a response, 0 disables it
func WithRequestTimeout(d time.Duration) OptionModifier {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithQueueCapacity bounds the number of commands kept while disconnected. A
// non-positive n selects queue.DefaultCapacity.
func WithQueueCapacity(n int) OptionModifier {
	return func(o *options) {
		o.queueCapacity = n
	}
}

// WithHeaders sets custom HTTP headers for the websocket connection
func WithHeaders(h http.Header) OptionModifier {
	return func(o *options) {
		o.headers = h
	}
}

// WithLogger allows passing a custom logger for the client
// @see https://pkg.go.dev/log/slog
func WithLogger(l *slog.Logger) OptionModifier {
	return func(o *options) {
		o.logger = l
	}
}

// WithDialerModifier allows customizing the underlying websocket dialer before connecting
// @see https://github.com/gorilla/websocket/blob/main/client.go#L53
func WithDialerModifier(m DialerModifier) OptionModifier {
	return func(o *options) {
		o.dialerModifier = m
	}
}

// WithScheduler replaces the system clock driving timeouts, heartbeats and reconnections
func WithScheduler(s Scheduler) OptionModifier {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithRandom replaces the jitter source, it must return values in [0,1)
func WithRandom(fn func() float64) OptionModifier {
	return func(o *options) {
		o.random = fn
	}
}

// WithMetrics records client activity on shared collectors
func WithMetrics(m *Metrics) OptionModifier {
	return func(o *options) {
		o.metrics = m
	}
}

// WithWriteWait sets the time allowed to write a frame to the engine
func WithWriteWait(d time.Duration) OptionModifier {
	return func(o *options) {
		o.writeWait = d
	}
}

// WithReadLimit sets the maximum size in bytes of an inbound frame
func WithReadLimit(n int64) OptionModifier {
	return func(o *options) {
		o.readLimit = n
	}
}

func defaultOptions() options {
	o := options{
		writeWait: 1 * time.Second,
		logger:    slog.New(slog.DiscardHandler),
		scheduler: systemScheduler{},
	}
	WithSettings(DefaultSettings())(&o)

	return o
}

type options struct {
	// logger for logging client events
	logger *slog.Logger

	// optional HTTP headers to include in the connection request
	headers http.Header

	// optional modifier to customize the dialer before connecting
	dialerModifier DialerModifier

	// reconnection delays and attempt ceiling
	backoff backoff.Config

	// jitter source, nil uses math/rand
	random func() float64

	// heartbeatInterval is the period of the staleness check
	heartbeatInterval time.Duration

	// staleThreshold is the inbound silence after which the socket is dropped
	staleThreshold time.Duration

	// keepalive is the command sent on quiet links
	keepalive codec.Command

	// requestTimeout is the default time allowed for a response
	requestTimeout time.Duration

	// queueCapacity bounds the commands kept while disconnected
	queueCapacity int

	// writeWait is the time allowed to write a message to the peer
	writeWait time.Duration

	// the maximum size in bytes for a message read from the peer
	readLimit int64

	// clock driving every timer of the client
	scheduler Scheduler

	// optional shared collectors
	metrics *Metrics
}

// SendOption customizes a single Send call.
type SendOption func(*sendOptions)

type sendOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the request timeout of a single call
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		o.timeout = d
	}
}
