package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call history. Append-only:
// there are no update or delete methods.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Service records call lifecycle transitions.
//
// Callers should treat history logging as best-effort: the engine logs and
// continues on failure rather than failing a call.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRecord = errors.New("history: invalid record")

func (s *Service) Append(ctx context.Context, rec Record) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if rec.SessionID == "" {
		return ErrInvalidRecord
	}
	if rec.Kind == "" {
		return ErrInvalidRecord
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, rec)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}

// CountByKind summarizes recent records for the support surface.
func (s *Service) CountByKind(ctx context.Context, limit int) (map[Kind]int, error) {
	recs, err := s.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make(map[Kind]int, len(recs))
	for _, r := range recs {
		out[r.Kind]++
	}
	return out, nil
}
