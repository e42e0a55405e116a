package core

import "time"

// TailCursor records how much of a log file has been consumed.
type TailCursor struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
}

// Status is the human-readable monitor status line.
type Status string

const (
	StatusIdle         Status = "⏹️ Not active"
	StatusMonitoring   Status = "⏳ Monitoring log..."
	StatusJobStarted   Status = "🚀 Job started"
	StatusJobFailed    Status = "❌ Job failed"
	StatusJobCompleted Status = "✅ Job completed"
	StatusReadError    Status = "⚠️ Error reading log file"
	StatusNotifyError  Status = "⚠️ Notification not delivered"
	StatusNoTarget     Status = "⚠️ No ntfy channel configured"
)

// MonitorState is a snapshot of the poll loop, pushed to clients on every change.
type MonitorState struct {
	Running         bool          `json:"running"`
	SessionID       string        `json:"session_id,omitempty"`
	Status          Status        `json:"status"`
	LogFile         string        `json:"log_file"`
	Offset          int64         `json:"offset"`
	CompletionDelay time.Duration `json:"completion_delay"`
	CheckInterval   time.Duration `json:"check_interval"`
	LastError       string        `json:"last_error,omitempty"`
	LastCycle       time.Time     `json:"last_cycle,omitempty"`
	Cycles          uint64        `json:"cycles"`
}
