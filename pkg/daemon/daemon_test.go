package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/rndrwatch/pkg/core"
	"github.com/modoterra/rndrwatch/pkg/settings"
	"github.com/modoterra/rndrwatch/pkg/transport/uds"
)

type testDaemon struct {
	d        *Daemon
	client   *uds.Client
	settings string
	desktop  *recordingNotifier
}

func startTestDaemon(t *testing.T, mutate func(*settings.Settings)) *testDaemon {
	t.Helper()
	dir := t.TempDir()
	s := settings.Default()
	s.DefaultLogFile = filepath.Join(dir, "rndr_log.txt")
	s.TestLogFile = filepath.Join(dir, "logs", "rndr_log_testing.txt")
	s.FilePath = filepath.Join(dir, "settings.yaml")
	if mutate != nil {
		mutate(s)
	}

	desktop := &recordingNotifier{}
	d := New(filepath.Join(dir, "d.sock"), s, testLogger(), Options{Desktop: desktop, SendTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		d.Shutdown()
		<-errCh
	})

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon exited: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	client, err := uds.Dial(d.Server().SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return &testDaemon{d: d, client: client, settings: s.FilePath, desktop: desktop}
}

func (td *testDaemon) call(t *testing.T, method string, data, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := td.client.Call(ctx, method, data, out); err != nil {
		t.Fatalf("%s: %v", method, err)
	}
}

func TestDaemonPing(t *testing.T) {
	td := startTestDaemon(t, nil)
	var pong uds.PingResponse
	td.call(t, uds.MethodPing, nil, &pong)
	if !pong.Pong || pong.Version == "" {
		t.Errorf("unexpected ping response %+v", pong)
	}
}

func TestDaemonStartStop(t *testing.T) {
	td := startTestDaemon(t, func(s *settings.Settings) { s.CheckInterval = 1 })

	var st core.MonitorState
	td.call(t, uds.MethodStatus, nil, &st)
	if st.Running || st.Status != core.StatusIdle {
		t.Fatalf("expected idle, got %+v", st)
	}

	td.call(t, uds.MethodStart, nil, &st)
	if !st.Running || st.SessionID == "" {
		t.Fatalf("expected running, got %+v", st)
	}
	if st.CheckInterval != time.Second {
		t.Errorf("expected interval from settings, got %v", st.CheckInterval)
	}

	td.call(t, uds.MethodStop, nil, &st)
	if st.Running || st.Status != core.StatusIdle {
		t.Errorf("expected idle after stop, got %+v", st)
	}
}

func TestDaemonSetParams(t *testing.T) {
	td := startTestDaemon(t, nil)

	var resp uds.OKResponse
	td.call(t, uds.MethodSetParams, uds.SetParamsRequest{CompletionDelay: 60}, &resp)
	if resp.OK || len(resp.Errors) == 0 {
		t.Fatalf("expected out-of-range delay to be rejected, got %+v", resp)
	}
	if got := td.d.Loop().CompletionDelay(); got != 300*time.Second {
		t.Errorf("expected delay unchanged, got %v", got)
	}

	td.call(t, uds.MethodSetParams, uds.SetParamsRequest{CompletionDelay: 600, CheckInterval: 5}, &resp)
	if !resp.OK {
		t.Fatalf("expected params accepted, got %+v", resp)
	}
	if got := td.d.Loop().CompletionDelay(); got != 600*time.Second {
		t.Errorf("expected delay 600s, got %v", got)
	}
	if got := td.d.Loop().CheckInterval(); got != 5*time.Second {
		t.Errorf("expected interval 5s, got %v", got)
	}

	saved, err := settings.Load(td.settings)
	if err != nil {
		t.Fatal(err)
	}
	if saved.CompletionDelay != 600 || saved.CheckInterval != 5 {
		t.Errorf("expected params persisted, got %d/%d", saved.CompletionDelay, saved.CheckInterval)
	}
}

func TestDaemonSetLogFileCreatesTestLog(t *testing.T) {
	td := startTestDaemon(t, nil)
	testLog := td.d.Settings().TestLogFile

	var st core.MonitorState
	td.call(t, uds.MethodSetLogFile, uds.SetLogFileRequest{UseTest: true}, &st)
	if st.LogFile != testLog {
		t.Errorf("expected log file %s, got %s", testLog, st.LogFile)
	}
	if _, err := os.Stat(testLog); err != nil {
		t.Errorf("expected test log to be created: %v", err)
	}

	td.call(t, uds.MethodSetLogFile, uds.SetLogFileRequest{UseTest: false}, &st)
	if st.LogFile != td.d.Settings().DefaultLogFile {
		t.Errorf("expected default log file, got %s", st.LogFile)
	}
}

func TestDaemonSetTopicValidation(t *testing.T) {
	td := startTestDaemon(t, nil)

	var resp uds.OKResponse
	td.call(t, uds.MethodSetTopic, uds.SetTopicRequest{Topic: "bad/topic"}, &resp)
	if resp.OK {
		t.Fatal("expected topic with slash to be rejected")
	}

	td.call(t, uds.MethodSetTopic, uds.SetTopicRequest{Topic: "my-render-node"}, &resp)
	if !resp.OK {
		t.Fatalf("expected topic accepted, got %+v", resp)
	}

	var s settings.Settings
	td.call(t, uds.MethodSettings, nil, &s)
	if s.NtfyTopic != "my-render-node" {
		t.Errorf("expected topic in settings, got %q", s.NtfyTopic)
	}
}

func TestDaemonSendTestNtfy(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, path = string(b), r.URL.Path
		mu.Unlock()
	}))
	defer srv.Close()

	td := startTestDaemon(t, func(s *settings.Settings) {
		s.NtfyServer = srv.URL
		s.NtfyTopic = "node1"
	})
	events := td.client.Events(16)

	var resp uds.OKResponse
	td.call(t, uds.MethodSendTest, nil, &resp)
	if !resp.OK {
		t.Fatalf("expected test send ok, got %+v", resp)
	}

	mu.Lock()
	if path != "/node1" || body != core.NotifyTest.Message() {
		t.Errorf("unexpected delivery %q to %q", body, path)
	}
	mu.Unlock()

	waitEvent(t, events, uds.EventNotification)

	var recent uds.RecentResponse
	td.call(t, uds.MethodRecent, nil, &recent)
	if len(recent.Notifications) != 1 || recent.Notifications[0].Kind != core.NotifyTest {
		t.Errorf("expected test notification in history, got %+v", recent.Notifications)
	}
}

func TestDaemonSendTestPopup(t *testing.T) {
	td := startTestDaemon(t, nil)

	var resp uds.OKResponse
	td.call(t, uds.MethodSetPopup, uds.SetPopupRequest{Enabled: true}, &resp)
	if !resp.OK {
		t.Fatalf("set popup: %+v", resp)
	}
	td.call(t, uds.MethodSendTest, nil, &resp)

	if got := td.desktop.messages(); len(got) != 1 || got[0] != core.NotifyTest.Message() {
		t.Errorf("expected popup delivery, got %q", got)
	}
}

func TestDaemonSendTestWithoutTarget(t *testing.T) {
	td := startTestDaemon(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := td.client.Call(ctx, uds.MethodSendTest, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "no ntfy channel configured") {
		t.Errorf("expected no-target error, got %v", err)
	}
}

func TestDaemonForwardsLogLines(t *testing.T) {
	td := startTestDaemon(t, func(s *settings.Settings) { s.CheckInterval = 1 })
	appendLines(t, td.d.Settings().DefaultLogFile, "boot", startLine)
	events := td.client.Events(64)

	td.call(t, uds.MethodStart, nil, nil)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Method != uds.EventLogsLine {
				continue
			}
			var line core.LogLine
			if err := evt.UnmarshalData(&line); err != nil {
				t.Fatal(err)
			}
			if line.Event == nil {
				continue
			}
			if line.Event.Hash != "abc123" {
				t.Errorf("expected hash abc123, got %q", line.Event.Hash)
			}
			var recent uds.RecentResponse
			td.call(t, uds.MethodRecent, uds.RecentRequest{Lines: 1}, &recent)
			if len(recent.Lines) != 1 {
				t.Errorf("expected 1 recent line, got %d", len(recent.Lines))
			}
			return
		case <-deadline:
			t.Fatal("no log line event")
		}
	}
}

func TestDaemonSetAutostartPersists(t *testing.T) {
	td := startTestDaemon(t, nil)
	var resp uds.OKResponse
	td.call(t, uds.MethodSetAutostart, uds.SetAutostartRequest{Enabled: true}, &resp)

	saved, err := settings.Load(td.settings)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.AutostartEnabled {
		t.Error("expected autostart persisted")
	}
}

func waitEvent(t *testing.T, events <-chan uds.Message, method string) uds.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatal("event stream closed")
			}
			if evt.Method == method {
				return evt
			}
		case <-deadline:
			t.Fatalf("no %s event", method)
		}
	}
}
