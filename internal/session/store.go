package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session: not found")
	// ErrStatusConflict is returned when an update would move a session
	// backward along the status graph (e.g. accepting an ended call).
	ErrStatusConflict = errors.New("session: status conflict")
)

// StatusUpdate carries the fields a status transition may set. Timestamps
// are set by whichever party performs the transition.
type StatusUpdate struct {
	Status    Status
	StartedAt *time.Time
	EndedAt   *time.Time
}

// Repo is the persistence contract for call sessions.
//
// UpdateStatus MUST enforce monotonicity: the stored status may only move
// forward along CanTransition, atomically with respect to concurrent writers.
type Repo interface {
	Insert(ctx context.Context, cs CallSession) (CallSession, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (CallSession, error)
	Get(ctx context.Context, id string) (CallSession, error)

	// LatestCalling returns the most recent session still ringing for a
	// receiver, if any. This is the catch-up read: it recovers invites
	// inserted before a subscription existed.
	LatestCalling(ctx context.Context, receiverID string) (CallSession, bool, error)
}
