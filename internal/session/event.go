package session

import "context"

// Op distinguishes row inserts from row updates on the change feed.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// ChangeEvent is emitted whenever a call session row is inserted or updated.
// Delivery is best-effort: events may be lost, duplicated, or reordered
// across reconnects. Consumers must pair a subscription with a catch-up read
// and keep every handler idempotent.
type ChangeEvent struct {
	Op      Op          `json:"op"`
	Session CallSession `json:"session"`
}

// Publisher pushes change events onto the notification channel.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}
