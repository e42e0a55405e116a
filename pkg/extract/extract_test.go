package extract

import (
	"testing"

	"github.com/modoterra/rndrwatch/pkg/core"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   core.JobEvent
		wantOK bool
	}{
		{
			name:   "start with hash",
			line:   "2025-03-01 12:00:01 starting a new render job with config hash: abc123",
			want:   core.Started("abc123"),
			wantOK: true,
		},
		{
			name:   "start hash stops at non-word char",
			line:   "starting a new render job with config hash: f00d_42, scene=7",
			want:   core.Started("f00d_42"),
			wantOK: true,
		},
		{
			name:   "start without hash token",
			line:   "starting a new render job with config hash:",
			want:   core.Started(""),
			wantOK: true,
		},
		{
			name:   "failure",
			line:   "ERROR job failed with config hash: abc123",
			want:   core.Failed(),
			wantOK: true,
		},
		{
			name:   "case sensitive",
			line:   "Starting A New Render Job with config hash: abc123",
			wantOK: false,
		},
		{
			name:   "unrelated line with hash",
			line:   "loaded config hash: deadbeef",
			wantOK: false,
		},
		{
			name:   "empty",
			line:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("event: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHash(t *testing.T) {
	if got := Hash("x config hash: 9f8e7d y"); got != "9f8e7d" {
		t.Errorf("got %q", got)
	}
	if got := Hash("no token here"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
