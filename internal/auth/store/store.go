package store

import (
	"context"
	"errors"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by SwapSession when the record was replaced
	// since it was read.
	ErrConflict = errors.New("store: conflicting update")
)

// Store is the root data access interface implemented by the database
// drivers (sqlite, postgres) and the in-memory driver.
type Store interface {
	Members() Members
	Sessions() Sessions

	ApplyMigrations() error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

type Members interface {
	// CreateMember inserts a member. A taken email yields ErrAlreadyExists.
	CreateMember(ctx context.Context, m domain.Member) error

	GetMemberByID(ctx context.Context, id string) (domain.Member, error)

	// GetMemberByEmail is used by login. Emails are compared as stored,
	// callers normalise them first.
	GetMemberByEmail(ctx context.Context, email string) (domain.Member, error)

	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Sessions keeps at most one refresh record per subject. Every method is
// atomic per subject and independent across subjects.
type Sessions interface {
	// PutSession inserts or overwrites the subject's record as a whole.
	PutSession(ctx context.Context, rec domain.RefreshRecord) error

	// GetSession returns ErrNotFound when there is no record or it is past
	// its ExpiresAt.
	GetSession(ctx context.Context, subjectID string) (domain.RefreshRecord, error)

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, subjectID string) error

	// SwapSession replaces the record only if its bound secret still equals
	// expectedSecret. It returns ErrConflict when the secret has moved on and
	// ErrNotFound when the record is gone.
	SwapSession(ctx context.Context, subjectID string, expectedSecret []byte, next domain.RefreshRecord) error

	// DeleteExpiredSessions purges records past their ExpiresAt and returns
	// how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
