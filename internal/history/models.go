package history

import "time"

// Record is an immutable, append-only call history entry.
//
// Invariants:
// - Records are never updated or deleted.
// - Writes are best-effort; signaling never blocks on history failures.
type Record struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`

	// Kind indicates which lifecycle transition the record captures.
	Kind Kind `json:"kind" db:"kind"`

	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`
	CallType   string `json:"call_type" db:"call_type"`

	// ActorID is the user whose action produced the transition, when known.
	ActorID string `json:"actor_id,omitempty" db:"actor_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindCreated   Kind = "created"
	KindAccepted  Kind = "accepted"
	KindDeclined  Kind = "declined"
	KindEnded     Kind = "ended"
	KindCancelled Kind = "cancelled"
)
