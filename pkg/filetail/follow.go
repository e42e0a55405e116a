package filetail

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nxadm/tail"

	"github.com/modoterra/rndrwatch/pkg/core"
)

// Follow streams lines from path until ctx is cancelled, surviving rotation.
// When fromStart is false only lines written after the call are delivered.
func Follow(ctx context.Context, path string, fromStart bool, fn func(core.LogLine)) error {
	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line == nil || line.Err != nil {
				continue
			}
			lines := splitLines([]byte(line.Text))
			if len(lines) == 0 {
				continue
			}
			ts := line.Time
			if ts.IsZero() {
				ts = time.Now()
			}
			fn(core.LogLine{Path: path, TsUnixMs: ts.UnixMilli(), Line: lines[0]})
		}
	}
}
