package sqlite

import (
	"context"
	"database/sql"

	"github.com/core-miniproject/stay/internal/auth/domain"
)

type membersRepo struct {
	db *sql.DB
}

const memberColumns = `id, email, name, phone_number, password_hash, role, created_at, updated_at`

func (r *membersRepo) CreateMember(ctx context.Context, m domain.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Email, m.Name, m.PhoneNumber, m.PasswordHash, m.Role,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *membersRepo) GetMemberByID(ctx context.Context, id string) (domain.Member, error) {
	return scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
}

func (r *membersRepo) GetMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	return scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = ?`, email))
}

func (r *membersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE email = ?)`, email).Scan(&exists)
	return exists, err
}

func scanMember(row *sql.Row) (domain.Member, error) {
	var m domain.Member
	err := row.Scan(&m.ID, &m.Email, &m.Name, &m.PhoneNumber, &m.PasswordHash, &m.Role,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Member{}, mapNotFound(err)
	}
	return m, nil
}
