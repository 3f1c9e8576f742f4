package session

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests and early development.
// It enforces the same monotonic status invariant as the Postgres repository.
//
// NOTE: This is not intended for production.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]CallSession
	order    []string // insertion order, oldest first
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]CallSession)}
}

func (r *MemoryRepo) Insert(ctx context.Context, cs CallSession) (CallSession, error) {
	_ = ctx
	if err := ValidateNew(cs); err != nil {
		return CallSession{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[cs.ID]; exists {
		return CallSession{}, ErrInvalidSession
	}
	r.sessions[cs.ID] = cs
	r.order = append(r.order, cs.ID)
	return cs, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (CallSession, error) {
	_ = ctx
	if !upd.Status.Valid() {
		return CallSession{}, ErrInvalidSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	if !CanTransition(cur.Status, upd.Status) {
		return CallSession{}, ErrStatusConflict
	}

	cur.Status = upd.Status
	if upd.StartedAt != nil {
		cur.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		cur.EndedAt = upd.EndedAt
	}
	r.sessions[id] = cur
	return cur, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (CallSession, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return cs, nil
}

func (r *MemoryRepo) LatestCalling(ctx context.Context, receiverID string) (CallSession, bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	// Newest first: walk insertion order backward.
	for i := len(r.order) - 1; i >= 0; i-- {
		cs := r.sessions[r.order[i]]
		if cs.ReceiverID != receiverID {
			continue
		}
		if cs.Status != StatusCalling {
			continue
		}
		return cs, true, nil
	}
	return CallSession{}, false, nil
}
