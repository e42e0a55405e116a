// Package jobstate infers render job start, failure and completion from a
// stream of log events.
//
// The render client never logs an explicit completion, so completion is
// inferred from silence: a job counts as done once CompletionDelay has passed
// since the last start without a failure in between.
//
// A Tracker is owned by a single poll loop and is not safe for concurrent use.
package jobstate

import (
	"time"

	"github.com/modoterra/rndrwatch/pkg/core"
)

// DefaultCompletionDelay matches the delay used when no setting is provided.
const DefaultCompletionDelay = 300 * time.Second

// State is the tracker's per-session memory.
type State struct {
	LastStart         time.Time // zero until the first start event
	StartNotified     bool
	CompletedNotified bool
	FirstCycle        bool
	SeenHashes        map[string]struct{}
}

// Tracker turns job events and clock ticks into notifications.
type Tracker struct {
	state State
	delay time.Duration
}

// New creates a tracker in the state of a freshly started session.
func New(delay time.Duration) *Tracker {
	t := &Tracker{delay: delay}
	t.Reset()
	return t
}

// Reset forgets everything, as at the start of a monitoring session.
// The next cycle is treated as the first one again.
func (t *Tracker) Reset() {
	t.state = State{
		FirstCycle: true,
		SeenHashes: make(map[string]struct{}),
	}
}

// SetCompletionDelay changes the quiet period used by Tick.
func (t *Tracker) SetCompletionDelay(d time.Duration) {
	t.delay = d
}

// CompletionDelay returns the quiet period used by Tick.
func (t *Tracker) CompletionDelay() time.Duration {
	return t.delay
}

// Apply records ev observed at now and returns the notifications it triggers.
// Start and failure notifications are withheld during the first cycle so that
// content already in the log does not produce alerts.
func (t *Tracker) Apply(ev core.JobEvent, now time.Time) []core.Notification {
	switch ev.Kind {
	case core.EventStarted:
		t.state.LastStart = now
		t.state.CompletedNotified = false
		if ev.Hash == "" {
			return nil
		}
		if _, seen := t.state.SeenHashes[ev.Hash]; seen {
			return nil
		}
		t.state.SeenHashes[ev.Hash] = struct{}{}
		if t.state.FirstCycle {
			return nil
		}
		t.state.StartNotified = true
		n := core.NewNotification(core.NotifyJobStarted, now)
		n.Hash = ev.Hash
		return []core.Notification{n}

	case core.EventFailed:
		t.state.StartNotified = false
		t.state.CompletedNotified = false
		if t.state.FirstCycle {
			return nil
		}
		return []core.Notification{core.NewNotification(core.NotifyJobFailed, now)}
	}
	return nil
}

// Tick checks whether the running job has been quiet long enough to be
// considered complete. It is called once per cycle and is not subject to
// first-cycle suppression.
func (t *Tracker) Tick(now time.Time) []core.Notification {
	s := &t.state
	if !s.StartNotified || s.CompletedNotified || s.LastStart.IsZero() {
		return nil
	}
	if now.Sub(s.LastStart) < t.delay {
		return nil
	}
	s.CompletedNotified = true
	s.StartNotified = false
	return []core.Notification{core.NewNotification(core.NotifyJobCompleted, now)}
}

// EndCycle marks the end of a successful read cycle, lifting first-cycle
// suppression for subsequent events.
func (t *Tracker) EndCycle() {
	t.state.FirstCycle = false
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	s := t.state
	s.SeenHashes = make(map[string]struct{}, len(t.state.SeenHashes))
	for h := range t.state.SeenHashes {
		s.SeenHashes[h] = struct{}{}
	}
	return s
}
