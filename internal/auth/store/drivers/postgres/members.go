package postgres

import (
	"context"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type membersRepo struct {
	pool *pgxpool.Pool
}

const memberColumns = `id, email, name, phone_number, password_hash, role, created_at, updated_at`

func (r *membersRepo) CreateMember(ctx context.Context, m domain.Member) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Email, m.Name, m.PhoneNumber, m.PasswordHash, m.Role, m.CreatedAt, m.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *membersRepo) GetMemberByID(ctx context.Context, id string) (domain.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

func (r *membersRepo) GetMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE lower(email) = lower($1)`, email))
}

func (r *membersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func scanMember(row pgx.Row) (domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.Email, &m.Name, &m.PhoneNumber, &m.PasswordHash, &m.Role,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Member{}, mapNotFound(err)
	}
	return m, nil
}
