package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNtfySend(t *testing.T) {
	var gotPath, gotBody, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNtfy(srv.URL+"/", "my-render-box")
	if err := n.Send(context.Background(), "🚀 New job started"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method: got %s", gotMethod)
	}
	if gotPath != "/my-render-box" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotBody != "🚀 New job started" {
		t.Errorf("body: got %q", gotBody)
	}
}

func TestNtfySendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewNtfy(srv.URL, "topic").Send(context.Background(), "x")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status: got %d", de.StatusCode)
	}
	if de.Body != "rate limited" {
		t.Errorf("body: got %q", de.Body)
	}
}

func TestNtfySendNoTopic(t *testing.T) {
	err := NewNtfy("", " ").Send(context.Background(), "x")
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func TestNtfyEndpointDefaultServer(t *testing.T) {
	if got := NewNtfy("", "abc").Endpoint(); got != "https://ntfy.sh/abc" {
		t.Errorf("got %q", got)
	}
}
