// Package memory is an in-process store for tests and single-instance
// development runs. Nothing survives a restart.
package memory

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
)

type Store struct {
	members  *membersRepo
	sessions *Sessions
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		members:  &membersRepo{byID: make(map[string]domain.Member), byEmail: make(map[string]string)},
		sessions: NewSessions(),
	}
}

func (s *Store) Members() store.Members   { return s.members }
func (s *Store) Sessions() store.Sessions { return s.sessions }

func (s *Store) ApplyMigrations() error     { return nil }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

type membersRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.Member
	byEmail map[string]string
}

func (r *membersRepo) CreateMember(_ context.Context, m domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(m.Email)
	if _, ok := r.byEmail[key]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.byID[m.ID]; ok {
		return store.ErrAlreadyExists
	}
	r.byID[m.ID] = m
	r.byEmail[key] = m.ID
	return nil
}

func (r *membersRepo) GetMemberByID(_ context.Context, id string) (domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return domain.Member{}, store.ErrNotFound
	}
	return m, nil
}

func (r *membersRepo) GetMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return domain.Member{}, store.ErrNotFound
	}
	return r.GetMemberByID(ctx, id)
}

func (r *membersRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[strings.ToLower(email)]
	return ok, nil
}

// Sessions keeps each record behind its own pointer in a sync.Map. Readers
// load a pointer and never see a half-written record, writers replace the
// pointer with CompareAndSwap, so no lock is shared between subjects.
type Sessions struct {
	m   sync.Map // subjectID -> *domain.RefreshRecord
	now func() time.Time
}

var _ store.Sessions = (*Sessions)(nil)

func NewSessions() *Sessions {
	return &Sessions{now: time.Now}
}

func clone(rec domain.RefreshRecord) *domain.RefreshRecord {
	rec.BoundSecret = bytes.Clone(rec.BoundSecret)
	return &rec
}

func (s *Sessions) PutSession(ctx context.Context, rec domain.RefreshRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.Store(rec.SubjectID, clone(rec))
	return nil
}

func (s *Sessions) load(subjectID string) (*domain.RefreshRecord, bool) {
	v, ok := s.m.Load(subjectID)
	if !ok {
		return nil, false
	}
	rec := v.(*domain.RefreshRecord)
	if rec.Expired(s.now()) {
		return rec, false
	}
	return rec, true
}

func (s *Sessions) GetSession(ctx context.Context, subjectID string) (domain.RefreshRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.RefreshRecord{}, err
	}
	rec, ok := s.load(subjectID)
	if !ok {
		return domain.RefreshRecord{}, store.ErrNotFound
	}
	return *clone(*rec), nil
}

func (s *Sessions) DeleteSession(ctx context.Context, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.Delete(subjectID)
	return nil
}

func (s *Sessions) SwapSession(
	ctx context.Context,
	subjectID string,
	expectedSecret []byte,
	next domain.RefreshRecord,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cur, ok := s.load(subjectID)
	if !ok {
		return store.ErrNotFound
	}
	if !bytes.Equal(cur.BoundSecret, expectedSecret) {
		return store.ErrConflict
	}

	// Pointer identity makes this a true compare-and-swap: anyone who
	// replaced or deleted the record since load wins, and we report conflict.
	if !s.m.CompareAndSwap(subjectID, cur, clone(next)) {
		if _, still := s.load(subjectID); !still {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return nil
}

func (s *Sessions) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	s.m.Range(func(key, value any) bool {
		if ctx.Err() != nil {
			return false
		}
		if value.(*domain.RefreshRecord).Expired(now) && s.m.CompareAndDelete(key, value) {
			n++
		}
		return true
	})
	return n, ctx.Err()
}
