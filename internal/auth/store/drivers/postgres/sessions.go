package postgres

import (
	"context"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

type sessionsRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func (r *sessionsRepo) PutSession(ctx context.Context, rec domain.RefreshRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (subject_id, refresh_hash, bound_secret, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id) DO UPDATE SET
			refresh_hash = EXCLUDED.refresh_hash,
			bound_secret = EXCLUDED.bound_secret,
			expires_at   = EXCLUDED.expires_at,
			created_at   = EXCLUDED.created_at,
			updated_at   = EXCLUDED.updated_at`,
		rec.SubjectID, rec.RefreshHash, rec.BoundSecret, rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (r *sessionsRepo) GetSession(ctx context.Context, subjectID string) (domain.RefreshRecord, error) {
	var rec domain.RefreshRecord
	err := r.pool.QueryRow(ctx, `
		SELECT subject_id, refresh_hash, bound_secret, expires_at, created_at, updated_at
		FROM sessions
		WHERE subject_id = $1 AND expires_at > $2`,
		subjectID, r.now(),
	).Scan(&rec.SubjectID, &rec.RefreshHash, &rec.BoundSecret, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.RefreshRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, subjectID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE subject_id = $1`, subjectID)
	return err
}

// SwapSession relies on the row lock taken by UPDATE: a concurrent swap
// re-evaluates the WHERE clause after the first commits and matches nothing.
func (r *sessionsRepo) SwapSession(
	ctx context.Context,
	subjectID string,
	expectedSecret []byte,
	next domain.RefreshRecord,
) error {
	now := r.now()

	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET
			refresh_hash = $1,
			bound_secret = $2,
			expires_at   = $3,
			updated_at   = $4
		WHERE subject_id = $5 AND bound_secret = $6 AND expires_at > $7`,
		next.RefreshHash, next.BoundSecret, next.ExpiresAt, next.UpdatedAt,
		subjectID, expectedSecret, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE subject_id = $1 AND expires_at > $2)`,
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
