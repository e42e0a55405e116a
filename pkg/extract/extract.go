// Package extract classifies render client log lines into job events.
package extract

import (
	"regexp"
	"strings"

	"github.com/modoterra/rndrwatch/pkg/core"
)

// Markers written by the render client. Matching is case-sensitive.
const (
	StartMarker = "starting a new render job with config hash:"
	FailMarker  = "job failed with config hash:"
)

var hashPattern = regexp.MustCompile(`config hash: (\w+)`)

// Extract returns the event described by line, if any.
func Extract(line string) (core.JobEvent, bool) {
	switch {
	case strings.Contains(line, StartMarker):
		return core.Started(Hash(line)), true
	case strings.Contains(line, FailMarker):
		return core.Failed(), true
	default:
		return core.JobEvent{}, false
	}
}

// Hash returns the config hash token embedded in line, or "" when absent.
func Hash(line string) string {
	m := hashPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}
