package session

import (
	"errors"
	"time"
)

// CallSession is the unit of coordination between two call participants.
// The row in call_sessions is the single source of truth for signaling:
// both clients converge on whatever Status the store holds.
//
// Invariants:
// - ID is immutable and globally unique (a collision would merge two calls).
// - RoomID is set once by the caller at creation and never changes; tokens
//   are minted against it regardless of which client asks.
// - Status only ever moves forward along the transition graph below.
type CallSession struct {
	ID         string `json:"id" db:"id"`
	CallerID   string `json:"caller_id" db:"caller_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`
	RoomID     string `json:"room_id" db:"room_id"`

	CallType CallType `json:"call_type" db:"call_type"`
	Status   Status   `json:"status" db:"status"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	switch t {
	case CallTypeVoice, CallTypeVideo:
		return true
	default:
		return false
	}
}

// Status is the persisted lifecycle state of a session. The engine keeps
// richer local states (ringing, in_call) that never touch the store.
type Status string

const (
	StatusCalling   Status = "calling"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCalling, StatusAccepted, StatusDeclined, StatusEnded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether a session in this status is logically dead.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusEnded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Rank orders statuses along the lifecycle. Observations are deduplicated
// against this ordering, not against event identity, so replayed or
// duplicated notifications are harmless.
func (s Status) Rank() int {
	switch s {
	case StatusCalling:
		return 1
	case StatusAccepted:
		return 2
	case StatusDeclined, StatusEnded, StatusCancelled:
		return 3
	default:
		return 0
	}
}

// CanTransition encodes the directed status graph. No party may move a
// session backward; terminal statuses accept nothing.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusCalling:
		switch to {
		case StatusAccepted, StatusDeclined, StatusEnded, StatusCancelled:
			return true
		}
	case StatusAccepted:
		switch to {
		case StatusEnded, StatusCancelled:
			return true
		}
	}
	return false
}

var ErrInvalidSession = errors.New("session: invalid session")

// ValidateNew checks a session record at the store boundary before insert.
func ValidateNew(cs CallSession) error {
	if cs.ID == "" || cs.RoomID == "" {
		return ErrInvalidSession
	}
	if cs.CallerID == "" || cs.ReceiverID == "" || cs.CallerID == cs.ReceiverID {
		return ErrInvalidSession
	}
	if !cs.CallType.Valid() {
		return ErrInvalidSession
	}
	if cs.Status != StatusCalling {
		return ErrInvalidSession
	}
	return nil
}
