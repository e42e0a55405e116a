package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/daemon"
	"github.com/modoterra/rndrwatch/pkg/settings"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func startDaemon(t *testing.T) (sock, settingsFile string) {
	t.Helper()
	dir := t.TempDir()
	s := settings.Default()
	s.DefaultLogFile = filepath.Join(dir, "rndr_log.txt")
	s.TestLogFile = filepath.Join(dir, "rndr_log_testing.txt")
	s.FilePath = filepath.Join(dir, "settings.yaml")

	sock = filepath.Join(dir, "d.sock")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := daemon.New(sock, s, logger, daemon.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		d.Shutdown()
		<-done
	})

	select {
	case <-d.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	return sock, s.FilePath
}

func TestSettingsValidateCommand(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "settings.yaml")
	content := []byte(`ntfy_topic: my-node
completion_delay: 300
check_interval: 30
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "settings", "validate", tmp)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid") {
		t.Errorf("expected valid output, got %q", out)
	}
}

func TestSettingsValidateInvalid(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	content := []byte(`completion_delay: 10
check_interval: 500
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "settings", "validate", tmp)
	if err == nil {
		t.Fatal("expected error for invalid settings")
	}
	if !strings.Contains(out, "completion_delay") || !strings.Contains(out, "check_interval") {
		t.Errorf("expected both fields reported, got %q", out)
	}
}

func TestSettingsInit(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "conf", "settings.yaml")

	if _, err := execute(t, "--settings", tmp, "settings", "init", "node-7"); err != nil {
		t.Fatal(err)
	}
	s, err := settings.Load(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if s.NtfyTopic != "node-7" {
		t.Errorf("expected topic node-7, got %q", s.NtfyTopic)
	}

	if _, err := execute(t, "--settings", tmp, "settings", "init"); err == nil {
		t.Error("expected init to refuse overwriting without --force")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "rndrwatch ") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestStatusJSON(t *testing.T) {
	sock, _ := startDaemon(t)

	out, err := execute(t, "--socket", sock, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st core.MonitorState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st.Running || st.Status != core.StatusIdle {
		t.Errorf("expected idle monitor, got %+v", st)
	}
	statusJSON = false
}

func TestSetRejectsOutOfRange(t *testing.T) {
	sock, _ := startDaemon(t)

	_, err := execute(t, "--socket", sock, "set", "--delay", "60", "--interval", "0")
	if err == nil || !strings.Contains(err.Error(), "completion_delay") {
		t.Errorf("expected completion_delay error, got %v", err)
	}

	out, err := execute(t, "--socket", sock, "set", "--delay", "600", "--interval", "0")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !strings.Contains(out, "timing updated") {
		t.Errorf("unexpected output %q", out)
	}
	setDelay, setInterval = 0, 0
}

func TestTopicCommandPersists(t *testing.T) {
	sock, file := startDaemon(t)

	if _, err := execute(t, "--socket", sock, "topic", "render-box"); err != nil {
		t.Fatal(err)
	}
	s, err := settings.Load(file)
	if err != nil {
		t.Fatal(err)
	}
	if s.NtfyTopic != "render-box" {
		t.Errorf("expected persisted topic, got %q", s.NtfyTopic)
	}
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"OFF", false, false},
		{"yes", true, false},
		{"T", true, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := parseOnOff(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOnOff(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOnOff(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
