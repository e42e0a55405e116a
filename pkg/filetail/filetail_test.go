package filetail

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modoterra/rndrwatch/pkg/core"
)

func testTailer() *Tailer {
	return New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func TestPollMissingFile(t *testing.T) {
	cur := core.TailCursor{Path: filepath.Join(t.TempDir(), "nope.txt")}
	b, err := testTailer().Poll(cur)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Found {
		t.Error("expected Found=false")
	}
	if len(b.Lines) != 0 {
		t.Errorf("expected no lines, got %v", b.Lines)
	}
	if b.Cursor != cur {
		t.Errorf("cursor changed: %+v", b.Cursor)
	}
}

func TestPollReadsNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	appendFile(t, path, "first\nsecond\n")
	tl := testTailer()

	b, err := tl.Poll(core.TailCursor{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 2 || b.Lines[0] != "first" || b.Lines[1] != "second" {
		t.Fatalf("lines: got %v", b.Lines)
	}
	if b.Cursor.Offset != int64(len("first\nsecond\n")) {
		t.Errorf("offset: got %d", b.Cursor.Offset)
	}

	appendFile(t, path, "third\r\n")
	b, err = tl.Poll(b.Cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 1 || b.Lines[0] != "third" {
		t.Errorf("lines after append: got %v", b.Lines)
	}
}

func TestPollIdempotentWithoutGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	appendFile(t, path, "line\n")
	tl := testTailer()

	first, err := tl.Poll(core.TailCursor{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		b, err := tl.Poll(first.Cursor)
		if err != nil {
			t.Fatal(err)
		}
		if len(b.Lines) != 0 {
			t.Errorf("poll %d: expected no lines, got %v", i, b.Lines)
		}
		if b.Cursor != first.Cursor {
			t.Errorf("poll %d: cursor moved from %+v to %+v", i, first.Cursor, b.Cursor)
		}
	}
}

func TestPollPartialLineAdvancesOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	appendFile(t, path, "complete\npartial")

	b, err := testTailer().Poll(core.TailCursor{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 2 || b.Lines[1] != "partial" {
		t.Errorf("lines: got %v", b.Lines)
	}
	if b.Cursor.Offset != int64(len("complete\npartial")) {
		t.Errorf("offset: got %d", b.Cursor.Offset)
	}
}

func TestPollRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	appendFile(t, path, "a fairly long line that will be rotated away\n")
	tl := testTailer()

	b, err := tl.Poll(core.TailCursor{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err = tl.Poll(b.Cursor)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Rotated {
		t.Error("expected Rotated=true")
	}
	if len(b.Lines) != 1 || b.Lines[0] != "new" {
		t.Errorf("lines: got %v", b.Lines)
	}
	if b.Cursor.Offset != 4 {
		t.Errorf("offset: got %d, want 4", b.Cursor.Offset)
	}
}

func TestPollDropsInvalidBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	if err := os.WriteFile(path, []byte("ok\xff\xfe line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := testTailer().Poll(core.TailCursor{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Lines) != 1 || b.Lines[0] != "ok line" {
		t.Errorf("lines: got %q", b.Lines)
	}
}

func TestPollDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := testTailer().Poll(core.TailCursor{Path: dir})
	if !errors.Is(err, ErrNotRegular) {
		t.Errorf("expected ErrNotRegular, got %v", err)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rndr_log.txt")
	appendFile(t, path, "old\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan core.LogLine, 4)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, true, func(l core.LogLine) { got <- l })
	}()

	select {
	case l := <-got:
		if l.Line != "old" {
			t.Errorf("got %q, want old", l.Line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for followed line")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
