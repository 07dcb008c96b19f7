package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	redisstore "github.com/core-miniproject/stay/internal/auth/store/drivers/redis"
	"github.com/core-miniproject/stay/internal/auth/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newSessions(t *testing.T) (*redisstore.Sessions, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return redisstore.NewSessions(rdb, "test"), mr
}

func TestSessions(t *testing.T) {
	storetest.RunSessions(t, func(t *testing.T) store.Sessions {
		s, _ := newSessions(t)
		return s
	})
}

func TestSessionKeyExpires(t *testing.T) {
	s, mr := newSessions(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.PutSession(ctx, domain.RefreshRecord{
		SubjectID:   "u1",
		RefreshHash: "hash",
		BoundSecret: []byte("0123456789abcdef0123456789abcdef"),
		ExpiresAt:   now.Add(time.Minute),
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	require.True(t, mr.Exists("test:session:u1"))
	require.Greater(t, mr.TTL("test:session:u1"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("test:session:u1"))
}

func TestSessionsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	s := redisstore.NewSessions(rdb, "test")

	_, err = s.GetSession(context.Background(), "u1")
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound, "a dead server is not a missing session")
}
