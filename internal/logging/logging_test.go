package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mickaelvieira/dspclient/internal/config"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("console gone")
}

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
}

func decodeRecords(t *testing.T, out string) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var r map[string]any
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("record %q is not JSON: %v", line, err)
		}
		records = append(records, r)
	}
	return records
}

func TestUnitLoggerTagsRecords(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	m := NewManager(&out)
	if err := m.Configure(config.Logging{Format: "json", Level: "debug"}); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	u := config.Unit{ID: "studio-a", URL: "ws://admin:secret@10.0.0.7:8080/engine"}
	m.Unit("client", u).Debug("connected")

	records := decodeRecords(t, out.String())
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	r := records[0]
	if r["component"] != "client" || r["msg"] != "connected" {
		t.Fatalf("unexpected record %v", r)
	}
	unit, ok := r["unit"].(map[string]any)
	if !ok {
		t.Fatalf("expected a unit group, got %v", r["unit"])
	}
	if unit["id"] != "studio-a" || unit["endpoint"] != "10.0.0.7:8080" {
		t.Errorf("unexpected unit group %v", unit)
	}
	if strings.Contains(out.String(), "secret") {
		t.Error("unit credentials leaked into the log")
	}
}

func TestConfigureFiltersBelowLevel(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	m := NewManager(&out)
	if err := m.Configure(config.Logging{Format: "json", Level: "warn"}); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	log := m.Component("watch")
	log.Info("state changed")
	log.Warn("connection stale", "idle", "46s")

	records := decodeRecords(t, out.String())
	if len(records) != 1 || records[0]["msg"] != "connection stale" {
		t.Fatalf("expected only the warning, got %v", records)
	}
	if records[0]["component"] != "watch" {
		t.Errorf("expected the watch component, got %v", records[0]["component"])
	}
}

func TestConfigureMirrorsToFile(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "dspctl.log")
	m := NewManager(&out)
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.Logging{Level: "debug", File: logPath}); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Unit("client", config.Unit{ID: "main", URL: "ws://localhost/engine"}).Debug("command queued")
	slog.Info("default logger is installed")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{"command queued", "unit.id=main", "default logger is installed"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file is missing %q: %q", want, data)
		}
		if !strings.Contains(out.String(), want) {
			t.Errorf("console is missing %q: %q", want, out.String())
		}
	}
}

func TestConfigureRejectsInvalidSettings(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	m := NewManager(&out)

	for _, cfg := range []config.Logging{{Format: "xml"}, {Level: "verbose"}} {
		if err := m.Configure(cfg); err == nil {
			t.Errorf("expected %+v to be rejected", cfg)
		}
	}

	m.Component("config").Info("still logging")
	if !strings.Contains(out.String(), "still logging") {
		t.Errorf("expected the previous logger to stay in place, got %q", out.String())
	}
}

func TestLevelFromName(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := levelFromName(name)
		if err != nil {
			t.Fatalf("levelFromName(%q) returned error: %v", name, err)
		}
		if got != want {
			t.Errorf("levelFromName(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := levelFromName("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestMirrorWriterIgnoresConsoleFailures(t *testing.T) {
	var file bytes.Buffer
	w := &mirrorWriter{console: failingWriter{}, file: &file}

	n, err := w.Write([]byte("record\n"))
	if err != nil || n != len("record\n") {
		t.Fatalf("unexpected write result %d %v", n, err)
	}
	if file.String() != "record\n" {
		t.Errorf("unexpected file contents %q", file.String())
	}

	w = &mirrorWriter{console: &bytes.Buffer{}, file: failingWriter{}}
	if _, err := w.Write([]byte("record\n")); err == nil {
		t.Error("expected file failures to be reported")
	}
}
