package notify

import (
	"context"
	"sync"
)

// Target selects where the Dispatcher delivers messages.
type Target struct {
	Server string
	Topic  string
	Popup  bool
}

// Dispatcher routes messages to ntfy or the desktop depending on its current
// target, which may be changed while monitoring runs.
type Dispatcher struct {
	mu      sync.RWMutex
	target  Target
	ntfy    *Ntfy
	desktop Notifier
}

// NewDispatcher creates a dispatcher for target. A nil desktop notifier
// selects NewDesktop.
func NewDispatcher(target Target, desktop Notifier) *Dispatcher {
	if desktop == nil {
		desktop = NewDesktop()
	}
	return &Dispatcher{
		target:  target,
		ntfy:    NewNtfy(target.Server, target.Topic),
		desktop: desktop,
	}
}

// SetTarget replaces the delivery target.
func (d *Dispatcher) SetTarget(t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = t
	client := d.ntfy.Client
	d.ntfy = NewNtfy(t.Server, t.Topic)
	d.ntfy.Client = client
}

// Target returns the current delivery target.
func (d *Dispatcher) Target() Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.target
}

// Configured reports whether Send can attempt a delivery.
func (d *Dispatcher) Configured() bool {
	t := d.Target()
	return t.Popup || t.Topic != ""
}

// Send delivers message to the current target. With no ntfy topic and popups
// disabled it returns ErrNoTarget without attempting delivery.
func (d *Dispatcher) Send(ctx context.Context, message string) error {
	d.mu.RLock()
	popup := d.target.Popup
	ntfy := d.ntfy
	desktop := d.desktop
	d.mu.RUnlock()

	if popup {
		return desktop.Send(ctx, message)
	}
	return ntfy.Send(ctx, message)
}
