package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/cryptox"
	"github.com/core-miniproject/stay/pkg/jwtx"
	"github.com/core-miniproject/stay/pkg/slogx"
)

var (
	// ErrMalformed: the token or header cannot be parsed. Client error.
	ErrMalformed = errors.New("malformed_token")

	// ErrExpired is only ever returned by Validate. Refresh accepts expired
	// tokens as long as their signature holds.
	ErrExpired = errors.New("token_expired")

	// ErrInvalidSignature: the token does not verify under the subject's
	// current secret.
	ErrInvalidSignature = errors.New("invalid_signature")

	// ErrStaleOrForgedToken: a refresh presented a token that was already
	// rotated away, lost a concurrent refresh, or was never ours.
	ErrStaleOrForgedToken = errors.New("stale_or_forged_token")

	// ErrSessionNotFound: logged out, expired or never existed. The client
	// must log in again.
	ErrSessionNotFound = errors.New("session_not_found")

	// ErrStoreUnavailable wraps infrastructure failures. Safe to retry.
	ErrStoreUnavailable = errors.New("store_unavailable")

	ErrInvalidSubject = errors.New("invalid_subject")
)

// SessionService issues, refreshes, validates and revokes access tokens.
// Every access token is signed with its own secret and the subject's
// refresh record remembers only the newest one, so issuing a token
// invalidates every earlier token of that subject.
//
// The service holds no state between calls, the session store is the only
// arbiter of which secret is current.
type SessionService struct {
	Codec      *jwtx.Codec
	Sessions   store.Sessions
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Metrics is optional.
	Metrics *SessionMetrics

	// Now defaults to time.Now.
	Now func() time.Time
}

func NewSessionService(codec *jwtx.Codec, sessions store.Sessions, accessTTL, refreshTTL time.Duration) *SessionService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &SessionService{
		Codec:      codec,
		Sessions:   sessions,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Issue starts a new session for subjectID, replacing any session the
// subject already had. It returns the access token and the raw refresh value;
// only a fingerprint of the refresh value is stored.
func (s *SessionService) Issue(ctx context.Context, subjectID, identity string) (domain.AccessToken, string, error) {
	return s.IssueWithRole(ctx, subjectID, identity, "")
}

// IssueWithRole is Issue with a role claim. Refreshed tokens carry the same
// role until the next Issue.
func (s *SessionService) IssueWithRole(ctx context.Context, subjectID, identity, role string) (_ domain.AccessToken, _ string, err error) {
	defer func() { s.Metrics.observe("issue", err) }()

	if strings.TrimSpace(subjectID) == "" || strings.TrimSpace(identity) == "" {
		return domain.AccessToken{}, "", ErrInvalidSubject
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.AccessToken{}, "", err
	}
	tok, err := s.mint(subjectID, identity, role)
	if err != nil {
		return domain.AccessToken{}, "", err
	}

	now := s.now()
	rec := domain.RefreshRecord{
		SubjectID:   subjectID,
		RefreshHash: cryptox.FingerprintToken(refresh),
		BoundSecret: tok.Secret,
		ExpiresAt:   now.Add(s.RefreshTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Sessions.PutSession(ctx, rec); err != nil {
		return domain.AccessToken{}, "", unavailable(err)
	}

	slogx.FromContext(ctx).Info("session issued", slogx.Subject(subjectID))
	return tok, refresh, nil
}

// Refresh exchanges the subject's latest access token, expired or not, for a
// new one. The refresh value and its lifetime are kept as they are.
func (s *SessionService) Refresh(ctx context.Context, presented string) (_ domain.AccessToken, err error) {
	defer func() { s.Metrics.observe("refresh", err) }()

	claims, rec, err := s.verify(ctx, presented, true)
	if err != nil {
		return domain.AccessToken{}, err
	}

	next, err := s.mint(rec.SubjectID, claims.Identity, claims.Role)
	if err != nil {
		return domain.AccessToken{}, err
	}

	upd := rec
	upd.BoundSecret = next.Secret
	upd.UpdatedAt = s.now()
	if err := s.swap(ctx, rec, upd); err != nil {
		return domain.AccessToken{}, err
	}

	slogx.FromContext(ctx).Info("session refreshed", slogx.Subject(rec.SubjectID))
	return next, nil
}

// RotateRefresh is Refresh that also replaces the refresh value and restarts
// its lifetime.
func (s *SessionService) RotateRefresh(ctx context.Context, presented string) (_ domain.AccessToken, _ string, err error) {
	defer func() { s.Metrics.observe("rotate", err) }()

	claims, rec, err := s.verify(ctx, presented, true)
	if err != nil {
		return domain.AccessToken{}, "", err
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.AccessToken{}, "", err
	}
	next, err := s.mint(rec.SubjectID, claims.Identity, claims.Role)
	if err != nil {
		return domain.AccessToken{}, "", err
	}

	now := s.now()
	upd := rec
	upd.RefreshHash = cryptox.FingerprintToken(refresh)
	upd.BoundSecret = next.Secret
	upd.ExpiresAt = now.Add(s.RefreshTTL)
	upd.UpdatedAt = now
	if err := s.swap(ctx, rec, upd); err != nil {
		return domain.AccessToken{}, "", err
	}

	slogx.FromContext(ctx).Info("session refresh value rotated", slogx.Subject(rec.SubjectID))
	return next, refresh, nil
}

// Validate authorises a request. Unlike Refresh it is strict: an expired
// token is rejected with ErrExpired, never accepted.
func (s *SessionService) Validate(ctx context.Context, presented string) (_ domain.Principal, err error) {
	defer func() { s.Metrics.observe("validate", err) }()

	claims, rec, err := s.verify(ctx, presented, false)
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{SubjectID: rec.SubjectID, Identity: claims.Identity, Role: claims.Role}, nil
}

// Revoke ends the subject's session. Revoking a session that does not exist
// is not an error.
func (s *SessionService) Revoke(ctx context.Context, subjectID string) (err error) {
	defer func() { s.Metrics.observe("revoke", err) }()

	if strings.TrimSpace(subjectID) == "" {
		return ErrInvalidSubject
	}
	if err := s.Sessions.DeleteSession(ctx, subjectID); err != nil {
		return unavailable(err)
	}

	slogx.FromContext(ctx).Info("session revoked", slogx.Subject(subjectID))
	return nil
}

// verify resolves the presented token to its subject's record and checks the
// signature against the secret bound to it. lenient accepts an expired token
// and reports signature failures as ErrStaleOrForgedToken.
func (s *SessionService) verify(ctx context.Context, presented string, lenient bool) (jwtx.Claims, domain.RefreshRecord, error) {
	peeked, err := s.Codec.Peek(presented)
	if err != nil {
		return jwtx.Claims{}, domain.RefreshRecord{}, ErrMalformed
	}

	rec, err := s.Sessions.GetSession(ctx, peeked.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.Claims{}, domain.RefreshRecord{}, ErrSessionNotFound
		}
		return jwtx.Claims{}, domain.RefreshRecord{}, unavailable(err)
	}

	claims, err := s.Codec.Decode(presented, rec.BoundSecret)
	switch {
	case err == nil:
		return claims, rec, nil
	case errors.Is(err, jwtx.ErrExpired):
		if lenient {
			return claims, rec, nil
		}
		return jwtx.Claims{}, domain.RefreshRecord{}, ErrExpired
	default:
		kind := ErrInvalidSignature
		if lenient {
			kind = ErrStaleOrForgedToken
		}
		s.audit(ctx, rec.SubjectID, kind)
		return jwtx.Claims{}, domain.RefreshRecord{}, kind
	}
}

func (s *SessionService) swap(ctx context.Context, cur, next domain.RefreshRecord) error {
	err := s.Sessions.SwapSession(ctx, cur.SubjectID, cur.BoundSecret, next)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		s.audit(ctx, cur.SubjectID, ErrStaleOrForgedToken)
		return ErrStaleOrForgedToken
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	default:
		return unavailable(err)
	}
}

func (s *SessionService) mint(subjectID, identity, role string) (domain.AccessToken, error) {
	secret, err := cryptox.GenerateSecret()
	if err != nil {
		return domain.AccessToken{}, err
	}

	signed, claims, err := s.Codec.MintRole(subjectID, identity, role, s.AccessTTL, secret)
	if err != nil {
		return domain.AccessToken{}, err
	}

	return domain.AccessToken{
		SubjectID: subjectID,
		Identity:  identity,
		Role:      role,
		ExpiresAt: claims.Expiry(),
		Secret:    secret,
		Value:     signed,
	}, nil
}

// audit records a rejected token. Only the subject and the error kind are
// logged.
func (s *SessionService) audit(ctx context.Context, subjectID string, kind error) {
	slogx.FromContext(ctx).LogAttrs(ctx, slog.LevelWarn, "access token rejected",
		slogx.Subject(subjectID),
		slogx.Err(kind),
	)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
