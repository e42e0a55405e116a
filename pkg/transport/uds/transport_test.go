package uds

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T, register func(*Server)) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv := NewServer(sock, logger)
	if register != nil {
		register(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	return srv, sock
}

func pingHandler(_ context.Context, _ Message) (any, error) {
	return PingResponse{Pong: true, Version: "test"}, nil
}

func TestPingRoundTrip(t *testing.T) {
	_, sock := startTestServer(t, func(s *Server) { s.Handle(MethodPing, pingHandler) })

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	var pong PingResponse
	if err := client.Call(reqCtx, MethodPing, nil, &pong); err != nil {
		t.Fatalf("ping request: %v", err)
	}
	if !pong.Pong {
		t.Error("expected pong=true")
	}
	if pong.Version != "test" {
		t.Errorf("version: got %q", pong.Version)
	}
}

func TestRequestPayload(t *testing.T) {
	_, sock := startTestServer(t, func(s *Server) {
		s.Handle(MethodSetTopic, func(_ context.Context, msg Message) (any, error) {
			var req SetTopicRequest
			if err := msg.UnmarshalData(&req); err != nil {
				return nil, err
			}
			return OKResponse{OK: req.Topic == "render-box"}, nil
		})
	})

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp OKResponse
	if err := client.Call(ctx, MethodSetTopic, SetTopicRequest{Topic: "render-box"}, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK {
		t.Error("expected ok=true")
	}
}

func TestUnknownMethod(t *testing.T) {
	_, sock := startTestServer(t, nil)

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	_, err = client.Request(reqCtx, "NoSuchMethod", nil)
	if err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestBroadcastEvent(t *testing.T) {
	srv, sock := startTestServer(t, func(s *Server) { s.Handle(MethodPing, pingHandler) })

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	events := client.Events(4)

	// Ensure connection is registered by doing a ping first
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if _, err := client.Request(pingCtx, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	evt, _ := NewEvent(EventStatus, map[string]string{"status": "running"})
	srv.Broadcast(evt)

	select {
	case msg := <-events:
		if msg.Method != EventStatus {
			t.Errorf("expected method %s, got %s", EventStatus, msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestEventsChannelClosesOnDisconnect(t *testing.T) {
	_, sock := startTestServer(t, nil)

	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	events := client.Events(1)
	client.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Error("events channel not closed")
	}
}

func TestUnmarshalDataEmpty(t *testing.T) {
	var v PingResponse
	if err := (Message{Method: MethodPing}).UnmarshalData(&v); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv(SocketEnv, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultSocketPath(); got != "/run/user/1000/rndrwatch.sock" {
		t.Errorf("DefaultSocketPath() = %q", got)
	}

	t.Setenv(SocketEnv, "/tmp/custom.sock")
	if got := DefaultSocketPath(); got != "/tmp/custom.sock" {
		t.Errorf("DefaultSocketPath() with override = %q", got)
	}
}
