package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newCalling(id, caller, receiver string, at time.Time) CallSession {
	return CallSession{
		ID:         id,
		CallerID:   caller,
		ReceiverID: receiver,
		RoomID:     "room-" + id,
		CallType:   CallTypeVoice,
		Status:     StatusCalling,
		CreatedAt:  at,
	}
}

func TestMemoryRepo_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()

	cs, err := r.Insert(ctx, newCalling("s1", "alice", "bob", time.Now()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := r.Get(ctx, cs.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RoomID != cs.RoomID || got.Status != StatusCalling {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := r.Insert(ctx, newCalling("s1", "alice", "bob", time.Now())); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}

func TestMemoryRepo_UpdateStatusEnforcesGraph(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	if _, err := r.Insert(ctx, newCalling("s1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := time.Now().UTC()
	got, err := r.UpdateStatus(ctx, "s1", StatusUpdate{Status: StatusAccepted, StartedAt: &now})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != StatusAccepted || got.StartedAt == nil {
		t.Fatalf("unexpected session after accept: %+v", got)
	}

	if _, err := r.UpdateStatus(ctx, "s1", StatusUpdate{Status: StatusCalling}); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}

	if _, err := r.UpdateStatus(ctx, "s1", StatusUpdate{Status: StatusEnded, EndedAt: &now}); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Terminal rows accept nothing further.
	if _, err := r.UpdateStatus(ctx, "s1", StatusUpdate{Status: StatusAccepted}); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict after terminal, got %v", err)
	}
}

func TestMemoryRepo_UpdateMissing(t *testing.T) {
	r := NewMemoryRepo()
	if _, err := r.UpdateStatus(context.Background(), "nope", StatusUpdate{Status: StatusEnded}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryRepo_LatestCallingPrefersNewest(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	base := time.Now()

	if _, err := r.Insert(ctx, newCalling("s1", "alice", "bob", base)); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if _, err := r.Insert(ctx, newCalling("s2", "alice", "bob", base.Add(time.Second))); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	cs, ok, err := r.LatestCalling(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if cs.ID != "s2" {
		t.Fatalf("expected newest invite s2, got %s", cs.ID)
	}

	// Terminal rows stop being invites.
	if _, err := r.UpdateStatus(ctx, "s2", mkEnd()); err != nil {
		t.Fatalf("end s2: %v", err)
	}
	cs, ok, err = r.LatestCalling(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("latest after end: ok=%v err=%v", ok, err)
	}
	if cs.ID != "s1" {
		t.Fatalf("expected s1 after s2 ended, got %s", cs.ID)
	}

	_, ok, err = r.LatestCalling(ctx, "carol")
	if err != nil || ok {
		t.Fatalf("expected no invite for carol")
	}
}

func mkEnd() StatusUpdate {
	now := time.Now().UTC()
	return StatusUpdate{Status: StatusEnded, EndedAt: &now}
}
