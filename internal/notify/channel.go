// Package notify carries change events for the call_sessions table between
// clients. The channel is deliberately dumb: one unfiltered feed, best-effort
// delivery, no ordering across reconnects. Server-side filtered subscriptions
// were observed to silently drop events, so subscribers always receive the
// full feed and filter client-side.
package notify

import (
	"context"

	"signaling-platform/internal/session"
)

// Handler consumes one change event. Handlers must be idempotent: the feed
// may duplicate, drop, or reorder events.
type Handler func(ctx context.Context, ev session.ChangeEvent)

// Channel is the notification transport contract.
type Channel interface {
	session.Publisher

	// Subscribe registers a handler for all subsequent events. A
	// subscription established after an event cannot see that event;
	// callers must pair Subscribe with a catch-up read.
	Subscribe(ctx context.Context, fn Handler) (cancel func(), err error)
}
