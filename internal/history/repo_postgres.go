package history

import (
	"context"
	"database/sql"
)

// PostgresRepo persists call history in Postgres.
//
// NOTE: Assumes the following table exists:
//
//	CREATE TABLE call_history (
//	    id          TEXT PRIMARY KEY,
//	    session_id  TEXT NOT NULL,
//	    kind        TEXT NOT NULL,
//	    caller_id   TEXT NOT NULL,
//	    receiver_id TEXT NOT NULL,
//	    call_type   TEXT NOT NULL,
//	    actor_id    TEXT,
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX call_history_created ON call_history (created_at DESC);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_history (id, session_id, kind, caller_id, receiver_id, call_type, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		string(rec.Kind),
		rec.CallerID,
		rec.ReceiverID,
		rec.CallType,
		rec.ActorID,
		rec.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
SELECT id, session_id, kind, caller_id, receiver_id, call_type, actor_id, created_at
FROM call_history
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var kind string
		var actorID sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&kind,
			&rec.CallerID,
			&rec.ReceiverID,
			&rec.CallType,
			&actorID,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = Kind(kind)
		rec.ActorID = actorID.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
