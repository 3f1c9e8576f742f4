package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the write path to the Session Record Store. Every successful
// insert or update is followed by a publish on the notification channel, so
// the store doubles as the signaling mailbox between the two engines.
//
// Publish failures do not roll back the write: the row is the source of
// truth and peers can still recover it via the catch-up read.
type Service struct {
	repo Repo
	pub  Publisher
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(repo Repo, pub Publisher) *Service {
	return &Service{repo: repo, pub: pub, clock: time.Now}
}

// Create inserts a fresh calling-status session. The initiator owns id and
// room id generation; both are fixed for the session's lifetime.
func (s *Service) Create(ctx context.Context, callerID, receiverID string, callType CallType) (CallSession, error) {
	cs := CallSession{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		RoomID:     uuid.NewString(),
		CallType:   callType,
		Status:     StatusCalling,
		CreatedAt:  s.clock().UTC(),
	}

	out, err := s.repo.Insert(ctx, cs)
	if err != nil {
		return CallSession{}, fmt.Errorf("insert session: %w", err)
	}

	_ = s.pub.Publish(ctx, ChangeEvent{Op: OpInsert, Session: out})
	return out, nil
}

// Transition moves a session forward along the status graph and stamps the
// timestamp owned by that transition.
func (s *Service) Transition(ctx context.Context, id string, to Status) (CallSession, error) {
	now := s.clock().UTC()
	upd := StatusUpdate{Status: to}
	switch to {
	case StatusAccepted:
		upd.StartedAt = &now
	case StatusEnded, StatusDeclined, StatusCancelled:
		upd.EndedAt = &now
	}

	out, err := s.repo.UpdateStatus(ctx, id, upd)
	if err != nil {
		return CallSession{}, err
	}

	_ = s.pub.Publish(ctx, ChangeEvent{Op: OpUpdate, Session: out})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (CallSession, error) {
	return s.repo.Get(ctx, id)
}

// LatestCalling is the catch-up read used at subscribe time.
func (s *Service) LatestCalling(ctx context.Context, receiverID string) (CallSession, bool, error) {
	return s.repo.LatestCalling(ctx, receiverID)
}

// WithClock replaces the service clock. Test helper.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}
