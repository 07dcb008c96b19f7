// Package redis keeps refresh records in Redis, one hash per subject with
// the key expiring at the record's ExpiresAt.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

const (
	fieldRefreshHash = "refresh_hash"
	fieldBoundSecret = "bound_secret"
	fieldExpiresAt   = "expires_at"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

const (
	swapNotFound int64 = 0
	swapConflict int64 = 1
	swapOK       int64 = 2
)

// KEYS[1] session key
// ARGV[1] expected secret, ARGV[2] refresh hash, ARGV[3] new secret,
// ARGV[4] expires_at ms, ARGV[5] updated_at ms, ARGV[6] now ms
const swapScript = `
local exp = redis.call("HGET", KEYS[1], "expires_at")
if not exp or tonumber(exp) <= tonumber(ARGV[6]) then
  return 0
end
if redis.call("HGET", KEYS[1], "bound_secret") ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1],
  "refresh_hash", ARGV[2],
  "bound_secret", ARGV[3],
  "expires_at", ARGV[4],
  "updated_at", ARGV[5])
redis.call("PEXPIREAT", KEYS[1], ARGV[4])
return 2
`

var swapLua = redis.NewScript(swapScript)

type Sessions struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Sessions = (*Sessions)(nil)

// NewSessions returns a session store using keys "<prefix>:session:<subject>".
func NewSessions(rdb redis.UniversalClient, prefix string) *Sessions {
	if prefix == "" {
		prefix = "stay"
	}
	return &Sessions{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *Sessions) key(subjectID string) string {
	return s.prefix + ":session:" + subjectID
}

// Ping checks the connection.
func (s *Sessions) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Sessions) Close() error { return s.rdb.Close() }

func (s *Sessions) PutSession(ctx context.Context, rec domain.RefreshRecord) error {
	key := s.key(rec.SubjectID)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldRefreshHash, rec.RefreshHash,
			fieldBoundSecret, rec.BoundSecret,
			fieldExpiresAt, rec.ExpiresAt.UnixMilli(),
			fieldCreatedAt, rec.CreatedAt.UnixMilli(),
			fieldUpdatedAt, rec.UpdatedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put session: %w", err)
	}
	return nil
}

func (s *Sessions) GetSession(ctx context.Context, subjectID string) (domain.RefreshRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(subjectID)).Result()
	if err != nil {
		return domain.RefreshRecord{}, fmt.Errorf("redis: get session: %w", err)
	}
	if len(fields) == 0 {
		return domain.RefreshRecord{}, store.ErrNotFound
	}

	rec, err := decodeRecord(subjectID, fields)
	if err != nil {
		return domain.RefreshRecord{}, err
	}
	if rec.Expired(s.now()) {
		return domain.RefreshRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, subjectID string) error {
	if err := s.rdb.Del(ctx, s.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

func (s *Sessions) SwapSession(
	ctx context.Context,
	subjectID string,
	expectedSecret []byte,
	next domain.RefreshRecord,
) error {
	status, err := swapLua.Run(ctx, s.rdb, []string{s.key(subjectID)},
		expectedSecret,
		next.RefreshHash,
		next.BoundSecret,
		next.ExpiresAt.UnixMilli(),
		next.UpdatedAt.UnixMilli(),
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: swap session: %w", err)
	}

	switch status {
	case swapOK:
		return nil
	case swapConflict:
		return store.ErrConflict
	case swapNotFound:
		return store.ErrNotFound
	default:
		return fmt.Errorf("redis: swap session: unexpected status %d", status)
	}
}

// DeleteExpiredSessions is a no-op, Redis expires the keys itself.
func (s *Sessions) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var errCorrupt = errors.New("redis: corrupt session record")

func decodeRecord(subjectID string, f map[string]string) (domain.RefreshRecord, error) {
	ms := func(name string) (time.Time, error) {
		v, err := strconv.ParseInt(f[name], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", errCorrupt, name)
		}
		return time.UnixMilli(v).UTC(), nil
	}

	secret := f[fieldBoundSecret]
	if secret == "" || f[fieldRefreshHash] == "" {
		return domain.RefreshRecord{}, errCorrupt
	}

	rec := domain.RefreshRecord{
		SubjectID:   subjectID,
		RefreshHash: f[fieldRefreshHash],
		BoundSecret: []byte(secret),
	}

	var err error
	if rec.ExpiresAt, err = ms(fieldExpiresAt); err != nil {
		return domain.RefreshRecord{}, err
	}
	if rec.CreatedAt, err = ms(fieldCreatedAt); err != nil {
		return domain.RefreshRecord{}, err
	}
	if rec.UpdatedAt, err = ms(fieldUpdatedAt); err != nil {
		return domain.RefreshRecord{}, err
	}
	return rec, nil
}
