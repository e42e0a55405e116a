package core

import "fmt"

// EventKind identifies a job lifecycle event extracted from the render log.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventFailed  EventKind = "failed"
)

// JobEvent is a single event derived from one log line.
// Hash is only meaningful for EventStarted and may be empty.
type JobEvent struct {
	Kind EventKind `json:"kind"`
	Hash string    `json:"hash,omitempty"`
}

// Started constructs a start event for the given config hash.
func Started(hash string) JobEvent {
	return JobEvent{Kind: EventStarted, Hash: hash}
}

// Failed constructs a failure event.
func Failed() JobEvent {
	return JobEvent{Kind: EventFailed}
}

func (e JobEvent) String() string {
	if e.Kind == EventStarted && e.Hash != "" {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Hash)
	}
	return string(e.Kind)
}
