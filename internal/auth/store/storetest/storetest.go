// Package storetest holds the behaviour every store driver must share.
// Driver tests call RunSessions and RunMembers with a fresh instance.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/idx"
	"github.com/stretchr/testify/require"
)

func secret(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func record(subject string, sec []byte, ttl time.Duration) domain.RefreshRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.RefreshRecord{
		SubjectID:   subject,
		RefreshHash: "hash-" + subject,
		BoundSecret: sec,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RunSessions exercises a store.Sessions implementation. newSessions must
// return an empty store.
func RunSessions(t *testing.T, newSessions func(t *testing.T) store.Sessions) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newSessions(t)
		_, err := s.GetSession(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newSessions(t)
		want := record("u1", secret(1), time.Hour)
		require.NoError(t, s.PutSession(ctx, want))

		got, err := s.GetSession(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, want.SubjectID, got.SubjectID)
		require.Equal(t, want.RefreshHash, got.RefreshHash)
		require.Equal(t, want.BoundSecret, got.BoundSecret)
		require.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("put overwrites whole record", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(1), time.Hour)))

		next := record("u1", secret(2), time.Hour)
		next.RefreshHash = "other"
		require.NoError(t, s.PutSession(ctx, next))

		got, err := s.GetSession(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "other", got.RefreshHash)
		require.Equal(t, secret(2), got.BoundSecret)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(1), time.Hour)))

		require.NoError(t, s.DeleteSession(ctx, "u1"))
		require.NoError(t, s.DeleteSession(ctx, "u1"))
		require.NoError(t, s.DeleteSession(ctx, "never-existed"))

		_, err := s.GetSession(ctx, "u1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("expired record reads as missing", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(1), -time.Minute)))

		_, err := s.GetSession(ctx, "u1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("swap with current secret", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(1), time.Hour)))

		next := record("u1", secret(2), time.Hour)
		require.NoError(t, s.SwapSession(ctx, "u1", secret(1), next))

		got, err := s.GetSession(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, secret(2), got.BoundSecret)
		require.Equal(t, next.RefreshHash, got.RefreshHash)
	})

	t.Run("swap with stale secret conflicts", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(2), time.Hour)))

		err := s.SwapSession(ctx, "u1", secret(1), record("u1", secret(3), time.Hour))
		require.ErrorIs(t, err, store.ErrConflict)

		got, err := s.GetSession(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, secret(2), got.BoundSecret, "failed swap must not write")
	})

	t.Run("swap on missing record", func(t *testing.T) {
		s := newSessions(t)
		err := s.SwapSession(ctx, "u1", secret(1), record("u1", secret(2), time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.PutSession(ctx, record("u2", secret(1), -time.Minute)))
		err = s.SwapSession(ctx, "u2", secret(1), record("u2", secret(2), time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound, "expired record cannot be revived")
	})

	t.Run("concurrent swaps have one winner", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("u1", secret(1), time.Hour)))

		const racers = 16
		var (
			wg        sync.WaitGroup
			wins      atomic.Int32
			conflicts atomic.Int32
		)
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.SwapSession(ctx, "u1", secret(1), record("u1", secret(byte(10+i)), time.Hour))
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, store.ErrConflict):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, wins.Load())
		require.EqualValues(t, racers-1, conflicts.Load())

		got, err := s.GetSession(ctx, "u1")
		require.NoError(t, err)
		require.NotEqual(t, secret(1), got.BoundSecret)
	})

	t.Run("subjects are independent", func(t *testing.T) {
		s := newSessions(t)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				subject := fmt.Sprintf("u%d", i)
				if err := s.PutSession(ctx, record(subject, secret(byte(i)), time.Hour)); err != nil {
					t.Errorf("put %s: %v", subject, err)
				}
			}()
		}
		wg.Wait()

		for i := range 20 {
			got, err := s.GetSession(ctx, fmt.Sprintf("u%d", i))
			require.NoError(t, err)
			require.Equal(t, secret(byte(i)), got.BoundSecret)
		}
	})

	t.Run("delete expired", func(t *testing.T) {
		s := newSessions(t)
		require.NoError(t, s.PutSession(ctx, record("old", secret(1), -time.Minute)))
		require.NoError(t, s.PutSession(ctx, record("live", secret(2), time.Hour)))

		n, err := s.DeleteExpiredSessions(ctx, time.Now())
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(0))

		_, err = s.GetSession(ctx, "live")
		require.NoError(t, err)
		_, err = s.GetSession(ctx, "old")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

// RunMembers exercises a store.Members implementation.
func RunMembers(t *testing.T, newMembers func(t *testing.T) store.Members) {
	t.Helper()
	ctx := context.Background()

	member := func(email string) domain.Member {
		now := time.Now().UTC().Truncate(time.Second)
		return domain.Member{
			ID:           idx.New().String(),
			Email:        email,
			Name:         "Guest",
			PhoneNumber:  "010-0000-0000",
			PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
			Role:         domain.RoleUser,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	t.Run("create and look up", func(t *testing.T) {
		m := newMembers(t)
		want := member("guest@example.com")
		require.NoError(t, m.CreateMember(ctx, want))

		byID, err := m.GetMemberByID(ctx, want.ID)
		require.NoError(t, err)
		require.Equal(t, want.Email, byID.Email)
		require.Equal(t, want.PasswordHash, byID.PasswordHash)
		require.Equal(t, domain.RoleUser, byID.Role)
		require.WithinDuration(t, want.CreatedAt, byID.CreatedAt, time.Second)

		byEmail, err := m.GetMemberByEmail(ctx, want.Email)
		require.NoError(t, err)
		require.Equal(t, want.ID, byEmail.ID)

		exists, err := m.ExistsByEmail(ctx, want.Email)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("missing member", func(t *testing.T) {
		m := newMembers(t)
		_, err := m.GetMemberByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = m.GetMemberByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		exists, err := m.ExistsByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		m := newMembers(t)
		require.NoError(t, m.CreateMember(ctx, member("dup@example.com")))

		err := m.CreateMember(ctx, member("dup@example.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})
}
