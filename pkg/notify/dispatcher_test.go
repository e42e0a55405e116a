package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Send(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestDispatcherRoutesToNtfy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	desktop := &recordingNotifier{}
	d := NewDispatcher(Target{Server: srv.URL, Topic: "t"}, desktop)
	if err := d.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("ntfy hits: got %d, want 1", hits.Load())
	}
	if len(desktop.messages) != 0 {
		t.Errorf("desktop should not be used, got %v", desktop.messages)
	}
}

func TestDispatcherRoutesToDesktop(t *testing.T) {
	desktop := &recordingNotifier{}
	d := NewDispatcher(Target{}, desktop)
	d.SetTarget(Target{Popup: true})

	if err := d.Send(context.Background(), "✅ Job completed!"); err != nil {
		t.Fatal(err)
	}
	if len(desktop.messages) != 1 || desktop.messages[0] != "✅ Job completed!" {
		t.Errorf("desktop messages: got %v", desktop.messages)
	}
}

func TestDispatcherNoTarget(t *testing.T) {
	d := NewDispatcher(Target{}, &recordingNotifier{})
	if d.Configured() {
		t.Error("expected Configured=false")
	}
	if err := d.Send(context.Background(), "x"); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func TestDesktopCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "notify-send"},
		{"darwin", "osascript"},
		{"windows", "powershell"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			var gotName string
			var gotArgs []string
			d := &Desktop{goos: tt.goos, available: true, run: func(_ context.Context, name string, args ...string) error {
				gotName = name
				gotArgs = args
				return nil
			}}
			if err := d.Send(context.Background(), "❌ Job failed"); err != nil {
				t.Fatal(err)
			}
			if gotName != tt.want {
				t.Errorf("command: got %q, want %q", gotName, tt.want)
			}
			if len(gotArgs) == 0 {
				t.Error("expected arguments")
			}
		})
	}
}

func TestDesktopUnavailable(t *testing.T) {
	d := &Desktop{goos: "plan9"}
	if err := d.Send(context.Background(), "x"); err == nil {
		t.Error("expected error when unavailable")
	}
}
