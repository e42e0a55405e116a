package core

import (
	"fmt"
	"time"
)

// NotificationKind identifies which lifecycle transition a notification reports.
type NotificationKind string

const (
	NotifyJobStarted   NotificationKind = "job_started"
	NotifyJobFailed    NotificationKind = "job_failed"
	NotifyJobCompleted NotificationKind = "job_completed"
	NotifyTest         NotificationKind = "test"
)

// Notification is a message destined for the notifier.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	Hash    string           `json:"hash,omitempty"`
	At      time.Time        `json:"at"`
}

// NewNotification builds a notification with the standard message text for kind.
func NewNotification(kind NotificationKind, at time.Time) Notification {
	return Notification{Kind: kind, Message: kind.Message(), At: at}
}

// Message returns the text pushed to the user for this kind.
func (k NotificationKind) Message() string {
	switch k {
	case NotifyJobStarted:
		return "🚀 New job started"
	case NotifyJobFailed:
		return "❌ Job failed"
	case NotifyJobCompleted:
		return "✅ Job completed!"
	case NotifyTest:
		return "📨 Test message"
	default:
		return string(k)
	}
}

// Status returns the short status line shown while this notification is the latest event.
func (k NotificationKind) Status() Status {
	switch k {
	case NotifyJobStarted:
		return StatusJobStarted
	case NotifyJobFailed:
		return StatusJobFailed
	case NotifyJobCompleted:
		return StatusJobCompleted
	default:
		return StatusMonitoring
	}
}

// ParseNotificationKind validates a kind received over the wire.
func ParseNotificationKind(s string) (NotificationKind, error) {
	switch k := NotificationKind(s); k {
	case NotifyJobStarted, NotifyJobFailed, NotifyJobCompleted, NotifyTest:
		return k, nil
	default:
		return "", fmt.Errorf("unknown notification kind %q", s)
	}
}
