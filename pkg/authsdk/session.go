package authsdk

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// expiryBuffer refreshes a little before the server would reject the token.
const expiryBuffer = 30 * time.Second

// Session is a logged-in member with automatic access token refresh.
// A Session is safe for concurrent use; concurrent callers that find the
// token expired share a single refresh.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	memberID     string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// LoginSession logs in and wraps the resulting tokens in a Session.
func (c *SDKClient) LoginSession(ctx context.Context, email, password string) (*Session, error) {
	tok, err := c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return newSession(c, tok), nil
}

// NewSessionFromTokens resumes a session from stored tokens.
func (c *SDKClient) NewSessionFromTokens(memberID, accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		MemberID:     memberID,
	})
}

func newSession(client *SDKClient, tok *TokenResponse) *Session {
	return &Session{
		client:       client,
		memberID:     tok.MemberID,
		accessToken:  tok.AccessToken,
		refreshToken: tok.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryBuffer),
	}
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if err := s.refreshLocked(ctx, false); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) refreshLocked(ctx context.Context, rotate bool) error {
	tok, err := s.client.Refresh(ctx, s.accessToken, rotate)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - expiryBuffer)
	return nil
}

// Refresh forces a refresh regardless of the token's expiry.
func (s *Session) Refresh(ctx context.Context, rotate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, rotate)
}

// Me returns the logged-in member.
func (s *Session) Me(ctx context.Context) (*MemberResponse, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Me(ctx, token)
}

// Logout ends the session on the server. The Session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	if err := s.client.Logout(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken, s.refreshToken = "", ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}

func (s *Session) MemberID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberID
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the refresh value handed out at login or by the last
// rotating refresh.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}
