// Package notify delivers job notifications to the user.
//
// Two transports are supported: an ntfy topic (HTTP POST of the plain message
// body) and a local desktop notification. Delivery is attempted once; callers
// decide what to do with a failure.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Title is used wherever a transport supports a notification title.
const Title = "RNDR Monitor"

// ErrNoTarget is returned when no notification target is configured.
var ErrNoTarget = errors.New("no ntfy channel configured")

// Notifier delivers a single message.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// DeliveryError reports a non-success response from a push endpoint.
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("deliver to %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("deliver to %s: status %d", e.Endpoint, e.StatusCode)
}
