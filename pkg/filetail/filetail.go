// Package filetail reads lines appended to a log file since a remembered offset.
package filetail

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/modoterra/rndrwatch/pkg/core"
)

// ErrNotRegular is returned when the log path names something other than a file.
var ErrNotRegular = errors.New("not a regular file")

// Batch is the result of a single poll.
type Batch struct {
	Lines   []string
	Cursor  core.TailCursor
	Found   bool // the file existed at poll time
	Rotated bool // the file shrank below the cursor and was re-read from 0
}

// Tailer polls a single file by byte offset. It keeps no file handle open
// between polls, so the writer is free to rotate or truncate the file.
type Tailer struct {
	logger *slog.Logger
}

// New creates a tailer.
func New(logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{logger: logger}
}

// Poll returns the lines appended after cur.Offset and the advanced cursor.
// A missing file yields an empty batch and no error.
func (t *Tailer) Poll(cur core.TailCursor) (Batch, error) {
	b := Batch{Cursor: cur}

	f, err := os.Open(cur.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b, nil
		}
		return b, fmt.Errorf("open %s: %w", cur.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return b, fmt.Errorf("stat %s: %w", cur.Path, err)
	}
	if !info.Mode().IsRegular() {
		return b, fmt.Errorf("%s: %w", cur.Path, ErrNotRegular)
	}
	b.Found = true

	offset := cur.Offset
	if offset < 0 || info.Size() < offset {
		// Shrunk below what we already consumed: treat as rotation.
		t.logger.Info("log file shrank, reading from start", "path", cur.Path, "offset", offset, "size", info.Size())
		offset = 0
		b.Rotated = true
	}
	if info.Size() == offset {
		b.Cursor.Offset = offset
		return b, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return b, fmt.Errorf("seek %s: %w", cur.Path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return b, fmt.Errorf("read %s: %w", cur.Path, err)
	}

	b.Lines = splitLines(data)
	b.Cursor.Offset = offset + int64(len(data))
	return b, nil
}

// splitLines decodes data leniently and returns its non-empty, trimmed lines.
// A trailing line without a newline is included.
func splitLines(data []byte) []string {
	text := strings.ToValidUTF8(string(data), "")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
