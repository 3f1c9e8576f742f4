package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"signaling-platform/pkg/utils"
)

// PostgresRepo persists call sessions in Postgres.
//
// NOTE: Assumes the following table exists:
//
//	CREATE TABLE call_sessions (
//	    id          TEXT PRIMARY KEY,
//	    caller_id   TEXT NOT NULL,
//	    receiver_id TEXT NOT NULL,
//	    room_id     TEXT NOT NULL,
//	    call_type   TEXT NOT NULL,
//	    status      TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    started_at  TIMESTAMPTZ,
//	    ended_at    TIMESTAMPTZ
//	);
//	CREATE INDEX call_sessions_receiver_calling
//	    ON call_sessions (receiver_id, created_at DESC) WHERE status = 'calling';
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, cs CallSession) (CallSession, error) {
	if err := ValidateNew(cs); err != nil {
		return CallSession{}, err
	}

	const q = `
INSERT INTO call_sessions (id, caller_id, receiver_id, room_id, call_type, status, created_at, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		cs.ID,
		cs.CallerID,
		cs.ReceiverID,
		cs.RoomID,
		string(cs.CallType),
		string(cs.Status),
		cs.CreatedAt,
		nullTime(cs.StartedAt),
		nullTime(cs.EndedAt),
	)
	if err != nil {
		return CallSession{}, err
	}
	return cs, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (CallSession, error) {
	if !upd.Status.Valid() {
		return CallSession{}, ErrInvalidSession
	}

	var out CallSession
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize concurrent transitions per session.
		cur, err := getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Status, upd.Status) {
			return ErrStatusConflict
		}

		const q = `
UPDATE call_sessions
SET status = $2,
    started_at = COALESCE($3, started_at),
    ended_at   = COALESCE($4, ended_at)
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, q, id, string(upd.Status), nullTime(upd.StartedAt), nullTime(upd.EndedAt)); err != nil {
			return err
		}

		cur.Status = upd.Status
		if upd.StartedAt != nil {
			cur.StartedAt = upd.StartedAt
		}
		if upd.EndedAt != nil {
			cur.EndedAt = upd.EndedAt
		}
		out = cur
		return nil
	})
	if err != nil {
		return CallSession{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (CallSession, error) {
	const q = selectCols + ` WHERE id = $1`
	return scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) LatestCalling(ctx context.Context, receiverID string) (CallSession, bool, error) {
	const q = selectCols + `
WHERE receiver_id = $1 AND status = 'calling'
ORDER BY created_at DESC
LIMIT 1
`
	cs, err := scanOne(r.db.QueryRowContext(ctx, q, receiverID))
	if errors.Is(err, ErrNotFound) {
		return CallSession{}, false, nil
	}
	if err != nil {
		return CallSession{}, false, err
	}
	return cs, true, nil
}

const selectCols = `
SELECT id, caller_id, receiver_id, room_id, call_type, status, created_at, started_at, ended_at
FROM call_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (CallSession, error) {
	const q = selectCols + ` WHERE id = $1 FOR UPDATE`
	return scanOne(tx.QueryRowContext(ctx, q, id))
}

func scanOne(row rowScanner) (CallSession, error) {
	var cs CallSession
	var callType, status string
	var startedAt, endedAt sql.NullTime

	err := row.Scan(
		&cs.ID,
		&cs.CallerID,
		&cs.ReceiverID,
		&cs.RoomID,
		&callType,
		&status,
		&cs.CreatedAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}

	cs.CallType = CallType(callType)
	cs.Status = Status(status)
	if startedAt.Valid {
		t := startedAt.Time
		cs.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		cs.EndedAt = &t
	}
	return cs, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
