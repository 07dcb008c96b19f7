package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
)

type sessionsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *sessionsRepo) PutSession(ctx context.Context, rec domain.RefreshRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (subject_id, refresh_hash, bound_secret, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
			refresh_hash = excluded.refresh_hash,
			bound_secret = excluded.bound_secret,
			expires_at   = excluded.expires_at,
			created_at   = excluded.created_at,
			updated_at   = excluded.updated_at`,
		rec.SubjectID, rec.RefreshHash, rec.BoundSecret,
		toMillis(rec.ExpiresAt), toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
	)
	return err
}

func (r *sessionsRepo) GetSession(ctx context.Context, subjectID string) (domain.RefreshRecord, error) {
	var (
		rec                           domain.RefreshRecord
		expiresAt, createdAt, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT subject_id, refresh_hash, bound_secret, expires_at, created_at, updated_at
		FROM sessions
		WHERE subject_id = ? AND expires_at > ?`,
		subjectID, toMillis(r.now()),
	).Scan(&rec.SubjectID, &rec.RefreshHash, &rec.BoundSecret, &expiresAt, &createdAt, &updated)
	if err != nil {
		return domain.RefreshRecord{}, mapNotFound(err)
	}

	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, subjectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE subject_id = ?`, subjectID)
	return err
}

// SwapSession is a single conditional UPDATE, the row is either replaced as a
// whole or left untouched.
func (r *sessionsRepo) SwapSession(
	ctx context.Context,
	subjectID string,
	expectedSecret []byte,
	next domain.RefreshRecord,
) error {
	now := toMillis(r.now())

	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			refresh_hash = ?,
			bound_secret = ?,
			expires_at   = ?,
			updated_at   = ?
		WHERE subject_id = ? AND bound_secret = ? AND expires_at > ?`,
		next.RefreshHash, next.BoundSecret, toMillis(next.ExpiresAt), toMillis(next.UpdatedAt),
		subjectID, expectedSecret, now,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE subject_id = ? AND expires_at > ?)`,
		subjectID, now,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return store.ErrConflict
	}
	return store.ErrNotFound
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
