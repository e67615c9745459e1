package interfaces

import "context"

// NotificationService delivers a rendered report to configured
// recipients. A delivery failure is logged by callers but never rolls
// back an already-persisted result.
type NotificationService interface {
	Send(ctx context.Context, subject, body string) error
	IsConfigured() bool
}
