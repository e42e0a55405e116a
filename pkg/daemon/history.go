package daemon

import (
	"sync"

	"github.com/modoterra/rndrwatch/pkg/core"
)

// Limits for the history kept for newly connected clients.
const (
	historyLines         = 1000
	historyNotifications = 100
)

// history is a ring buffer of recent log lines and notifications.
type history struct {
	mu    sync.Mutex
	lines []core.LogLine
	notes []core.Notification
}

func newHistory() *history {
	return &history{}
}

func (h *history) addLine(l core.LogLine) {
	h.mu.Lock()
	h.lines = append(h.lines, l)
	if len(h.lines) > historyLines {
		h.lines = h.lines[len(h.lines)-historyLines:]
	}
	h.mu.Unlock()
}

func (h *history) addNotification(n core.Notification) {
	h.mu.Lock()
	h.notes = append(h.notes, n)
	if len(h.notes) > historyNotifications {
		h.notes = h.notes[len(h.notes)-historyNotifications:]
	}
	h.mu.Unlock()
}

// snapshot returns copies of the last n lines (all if n <= 0) and all
// buffered notifications.
func (h *history) snapshot(n int) ([]core.LogLine, []core.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := h.lines
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return append([]core.LogLine(nil), lines...), append([]core.Notification(nil), h.notes...)
}
