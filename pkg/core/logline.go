package core

// LogLine represents a single line read from the render log.
type LogLine struct {
	Path     string    `json:"path"`
	TsUnixMs int64     `json:"ts_unix_ms"`
	Line     string    `json:"line"`
	Event    *JobEvent `json:"event,omitempty"`
}
