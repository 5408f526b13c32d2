package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mickaelvieira/dspclient/enginetest"
)

func engine(name string, frame []byte) []byte {
	switch name {
	case "GetVersion":
		return enginetest.Ok(name, "1.0.0")
	case "SetVolume":
		return enginetest.Ok(name, nil)
	case "GetConfig":
		return enginetest.Ok(name, map[string]any{"samplerate": 48000})
	case "Fail":
		return enginetest.Err(name, "bad state")
	}
	return nil
}

func setupCLITestEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DSPCTL_URL", "")
	return filepath.Join(t.TempDir(), "config.toml")
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args, configPath)
}

func runCLIContext(t *testing.T, ctx context.Context, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitPathAndShow(t *testing.T) {
	configPath := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "path"}, configPath)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	requireContains(t, out, configPath)

	out, _, err = runCLI(t, []string{"config", "init", "--path", configPath}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", configPath}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing file")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "keepalive_command")
	requireContains(t, out, "ws://127.0.0.1:1234")
}

func TestInvalidLogLevelFlag(t *testing.T) {
	configPath := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"--log-level", "loud", "config", "show"}, configPath)
	if err == nil {
		t.Fatal("expected an invalid log level to be rejected")
	}
	requireContains(t, err.Error(), "logging.level")
}

func TestSendCommand(t *testing.T) {
	configPath := setupCLITestEnv(t)

	s := enginetest.NewServer(engine)
	defer s.Close()

	out, _, err := runCLI(t, []string{"--url", s.URL, "send", "GetVersion"}, configPath)
	if err != nil {
		t.Fatalf("send GetVersion: %v", err)
	}
	if strings.TrimSpace(out) != `"1.0.0"` {
		t.Fatalf("unexpected output %q", out)
	}

	out, _, err = runCLI(t, []string{"--url", s.URL, "send", "--priority", "high", "SetVolume", "--", "-12.5"}, configPath)
	if err != nil {
		t.Fatalf("send SetVolume: %v", err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Fatalf("unexpected output %q", out)
	}

	out, _, err = runCLI(t, []string{"--url", s.URL, "send", "GetConfig"}, configPath)
	if err != nil {
		t.Fatalf("send GetConfig: %v", err)
	}
	requireContains(t, out, `"samplerate": 48000`)

	received := s.Received()
	if len(received) != 3 || received[1] != "SetVolume" {
		t.Fatalf("unexpected commands received %v", received)
	}
}

func TestSendCommandErrors(t *testing.T) {
	configPath := setupCLITestEnv(t)

	s := enginetest.NewServer(engine)
	defer s.Close()

	_, _, err := runCLI(t, []string{"--url", s.URL, "send", "Fail"}, configPath)
	if err == nil || err.Error() != "bad state" {
		t.Fatalf("expected the engine error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"--url", s.URL, "send", "SetVolume", "{not json"}, configPath)
	if err == nil {
		t.Fatal("expected an invalid argument to be rejected")
	}

	_, _, err = runCLI(t, []string{"--url", s.URL, "send", "--priority", "urgent", "GetVersion"}, configPath)
	if err == nil {
		t.Fatal("expected an unknown priority to be rejected")
	}

	_, _, err = runCLI(t, []string{"--url", s.URL, "send", "--timeout", "50ms", "GetState"}, configPath)
	if err == nil || err.Error() != "Request timeout: GetState" {
		t.Fatalf("expected a request timeout, got %v", err)
	}

	s.Refuse(true)
	_, _, err = runCLI(t, []string{"--url", s.URL, "send", "GetVersion"}, configPath)
	if err == nil {
		t.Fatal("expected a refused connection to fail")
	}
	requireContains(t, err.Error(), "connect to")
}

func TestSendUnknownUnit(t *testing.T) {
	configPath := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"send", "--unit", "kitchen", "GetVersion"}, configPath)
	if err == nil {
		t.Fatal("expected an unknown unit to be rejected")
	}
	requireContains(t, err.Error(), "kitchen")
}

func TestWatchConnectsEveryUnit(t *testing.T) {
	setupCLITestEnv(t)

	first := enginetest.NewServer(engine)
	defer first.Close()
	second := enginetest.NewServer(engine)
	defer second.Close()

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := "[client]\nheartbeat_interval_ms = 0\n\n" +
		"[metrics]\nlisten = \"127.0.0.1:0\"\n\n" +
		"[[units]]\nid = \"first\"\nurl = \"" + first.URL + "\"\n\n" +
		"[[units]]\nid = \"second\"\nurl = \"" + second.URL + "\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		stderr string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		_, stderr, err := runCLIContext(t, ctx, []string{"watch"}, configPath)
		done <- result{stderr: stderr, err: err}
	}()

	for _, s := range []*enginetest.Server{first, second} {
		if !s.WaitFor(func() bool { return s.Open() == 1 }, 5*time.Second) {
			t.Fatal("Timeout waiting for watch to connect")
		}
	}
	first.Push([]byte(`{"StateChanged":"Running"}`))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("watch: %v", r.err)
		}
		requireContains(t, r.stderr, "unit.id=first")
		requireContains(t, r.stderr, "unit.endpoint="+strings.TrimPrefix(first.URL, "ws://"))
		requireContains(t, r.stderr, "StateChanged")
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	for _, s := range []*enginetest.Server{first, second} {
		if !s.WaitFor(func() bool { return s.Open() == 0 }, 5*time.Second) {
			t.Fatal("expected watch to close every client")
		}
	}
}
