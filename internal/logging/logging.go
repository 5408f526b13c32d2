// Package logging builds the slog loggers used by dspctl.
//
// Every record carries the component that emitted it. Records about an engine
// connection also carry a unit group with the unit id and the engine endpoint, so
// the output of several units watched at once can be told apart.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mickaelvieira/dspclient/internal/config"
)

// Manager owns the dspctl root logger and the log file it may mirror records to.
type Manager struct {
	mu      sync.Mutex
	console io.Writer
	root    *slog.Logger
	file    *os.File
}

// NewManager returns a manager logging text at info level to console, os.Stderr
// when nil.
func NewManager(console io.Writer) *Manager {
	if console == nil {
		console = os.Stderr
	}

	return &Manager{
		console: console,
		root:    slog.New(slog.NewTextHandler(console, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

// Configure rebuilds the root logger from cfg and installs it as the slog default.
// The previous logger stays in place when cfg is rejected.
func (m *Manager) Configure(cfg config.Logging) error {
	level, err := levelFromName(cfg.Level)
	if err != nil {
		return err
	}
	newHandler, err := handlerFor(cfg.Format)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var file *os.File
	if cfg.File != "" {
		if file, err = openLogFile(cfg.File); err != nil {
			return err
		}
	}
	if m.file != nil {
		_ = m.file.Close()
	}
	m.file = file

	var w io.Writer = m.console
	if file != nil {
		w = &mirrorWriter{console: m.console, file: file}
	}

	m.root = slog.New(newHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(m.root)

	return nil
}

// Component returns a logger whose records name the dspctl component emitting them.
func (m *Manager) Component(name string) *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.root.With("component", name)
}

// Unit returns a component logger bound to one engine unit. The endpoint is the
// host of the unit URL, credentials and paths are left out.
func (m *Manager) Unit(component string, u config.Unit) *slog.Logger {
	return m.Component(component).With(UnitAttr(u))
}

// UnitAttr groups the identity of a unit under the "unit" key.
func UnitAttr(u config.Unit) slog.Attr {
	endpoint := u.URL
	if parsed, err := url.Parse(u.URL); err == nil && parsed.Host != "" {
		endpoint = parsed.Host
	}

	return slog.Group("unit", "id", u.ID, "endpoint", endpoint)
}

// Close flushes and releases the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	err := errors.Join(m.file.Sync(), m.file.Close())
	m.file = nil

	return err
}

type handlerFunc func(io.Writer, *slog.HandlerOptions) slog.Handler

func handlerFor(format string) (handlerFunc, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) }, nil
	case "json":
		return func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) }, nil
	}

	return nil, fmt.Errorf("unsupported log format: %q", format)
}

// levelFromName accepts the slog level names, "warning" and an empty name for info.
func levelFromName(name string) (slog.Level, error) {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unsupported log level: %q", name)
	}

	return level, nil
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return f, nil
}

// mirrorWriter copies records to the console and the log file. The file is the
// record of reference: console failures are ignored, file failures are reported.
type mirrorWriter struct {
	console io.Writer
	file    io.Writer
}

func (w *mirrorWriter) Write(p []byte) (int, error) {
	_, _ = w.console.Write(p)

	n, err := w.file.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}

	return n, err
}
