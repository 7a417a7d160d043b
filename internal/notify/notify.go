// Package notify delivers best-effort user notifications. The lifecycle
// engine enqueues intents on a dispatcher; delivery happens on a separate
// goroutine so transport latency or failure never reaches a committed
// state transition.
package notify

import "context"

// Intent is one pending notification. Kind is informational and shows up
// in logs and queue payloads.
type Intent struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	KindApproval     = "borrow_approved"
	KindRejection    = "borrow_rejected"
	KindReturn       = "borrow_returned"
	KindOverdue      = "overdue_reminder"
	KindDueSoon      = "due_soon_reminder"
	KindAvailability = "book_available"
)

// Notifier sends a single notification. Implementations must treat
// failures as their own problem to report; callers only log them.
type Notifier interface {
	Send(ctx context.Context, intent Intent) error
}

// Enqueuer accepts intents for asynchronous delivery.
type Enqueuer interface {
	Enqueue(intent Intent) bool
}
