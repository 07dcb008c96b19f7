package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/internal/auth/store/drivers/memory"
	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/cryptox"
	"github.com/core-miniproject/stay/pkg/jwtx"
	"github.com/core-miniproject/stay/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authhttp")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	router   *Router
	sessions *service.SessionService
}

func newTestServer(t *testing.T, st store.Store, sessions store.Sessions) *testServer {
	t.Helper()

	svc := service.NewSessionService(jwtx.NewCodec("stay-auth"), sessions, time.Minute, time.Hour)
	r := NewRouter("test", st, 5*time.Second, slogx.Discard())
	r.SessionService = svc
	r.MemberService = &service.MemberService{Members: st.Members(), Sessions: svc}
	r.ApplyRoutes()

	return &testServer{router: r, sessions: svc}
}

func newMemoryServer(t *testing.T) *testServer {
	st := memory.NewStore()
	return newTestServer(t, st, st.Sessions())
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	require.Equal(t, code, decode[authsdk.ErrorResponse](t, rec).Error)
}

func (s *testServer) joinAndLogin(t *testing.T, email string) authsdk.TokenResponse {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/v1/members/join", "", authsdk.JoinRequest{
		Email: email, Password: "correct horse", Name: "Guest",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/v1/members/login", "", authsdk.LoginRequest{
		Email: email, Password: "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authsdk.TokenResponse](t, rec)
}

func TestJoinEndpoint(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)

	rec := s.do(t, http.MethodPost, "/v1/members/join", "", authsdk.JoinRequest{
		Email: "guest@example.com", Password: "correct horse", Name: "Guest", PhoneNumber: "010-0000-0000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	m := decode[authsdk.MemberResponse](t, rec)
	require.NotEmpty(t, m.ID)
	require.Equal(t, domain.RoleUser, m.Role)
	require.NotContains(t, rec.Body.String(), "argon2id")

	rec = s.do(t, http.MethodPost, "/v1/members/join", "", authsdk.JoinRequest{
		Email: "guest@example.com", Password: "correct horse", Name: "Guest",
	})
	requireError(t, rec, http.StatusConflict, authsdk.ErrorCodeDuplicateEmail)

	rec = s.do(t, http.MethodPost, "/v1/members/join", "", authsdk.JoinRequest{
		Email: "other@example.com", Password: "short", Name: "Guest",
	})
	requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

	rec = s.do(t, http.MethodPost, "/v1/members/join", "", map[string]string{"email": "x@example.com", "role": "ADMIN"})
	requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	tok := s.joinAndLogin(t, "guest@example.com")

	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.NotEmpty(t, tok.MemberID)
	require.Equal(t, "Bearer", tok.TokenType)
	require.InDelta(t, 60, tok.ExpiresIn, 1)

	rec := s.do(t, http.MethodPost, "/v1/members/login", "", authsdk.LoginRequest{
		Email: "guest@example.com", Password: "wrong password",
	})
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestMeEndpoint(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	tok := s.joinAndLogin(t, "guest@example.com")

	rec := s.do(t, http.MethodGet, "/v1/members/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, tok.MemberID, decode[authsdk.MemberResponse](t, rec).ID)

	t.Run("missing header", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/v1/members/me", "", nil)
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/members/me", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("malformed token", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/v1/members/me", "not-a-jwt", nil)
		requireError(t, rec, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	tok := s.joinAndLogin(t, "guest@example.com")

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[authsdk.TokenResponse](t, rec)
	require.NotEqual(t, tok.AccessToken, next.AccessToken)
	require.Empty(t, next.RefreshToken, "a plain refresh does not hand out a refresh value")

	t.Run("replay", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/auth/refresh", tok.AccessToken, nil)
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("superseded token on a protected route", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/v1/members/me", tok.AccessToken, nil)
		requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("rotate", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/v1/auth/refresh?rotate=true", next.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rotated := decode[authsdk.TokenResponse](t, rec)
		require.NotEmpty(t, rotated.RefreshToken)
		require.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)
	})
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestExpiredTokenOnlyRefreshes(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	clock := &stepClock{now: time.Now()}
	s.sessions.Codec.Now = clock.Now
	s.sessions.Now = clock.Now

	tok := s.joinAndLogin(t, "late@example.com")

	forger, err := cryptox.GenerateSecret()
	require.NoError(t, err)
	forged, _, err := s.sessions.Codec.Mint(tok.MemberID, "late@example.com", time.Hour, forger)
	require.NoError(t, err)

	clock.Advance(s.sessions.AccessTTL + time.Minute)
	require.Less(t, s.sessions.AccessTTL+time.Minute, s.sessions.RefreshTTL)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/members/me"},
		{http.MethodPost, "/v1/auth/logout"},
	} {
		expiredRec := s.do(t, route.method, route.path, tok.AccessToken, nil)
		forgedRec := s.do(t, route.method, route.path, forged, nil)

		requireError(t, expiredRec, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
		require.Equal(t, forgedRec.Code, expiredRec.Code, route.path)
		require.JSONEq(t, forgedRec.Body.String(), expiredRec.Body.String(),
			"%s: an expired token must be indistinguishable from a forged one", route.path)
		require.NotContains(t, expiredRec.Body.String(), "expire")
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[authsdk.TokenResponse](t, rec)

	rec = s.do(t, http.MethodGet, "/v1/members/me", next.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, tok.MemberID, decode[authsdk.MemberResponse](t, rec).ID)
}

func TestLogoutEndpoint(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	tok := s.joinAndLogin(t, "guest@example.com")

	rec := s.do(t, http.MethodPost, "/v1/auth/logout", tok.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/members/me", tok.AccessToken, nil)
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeSessionNotFound)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", tok.AccessToken, nil)
	requireError(t, rec, http.StatusUnauthorized, authsdk.ErrorCodeSessionNotFound)
}

var errDown = errors.New("connection refused")

type downSessions struct {
	store.Sessions
}

func (downSessions) GetSession(context.Context, string) (domain.RefreshRecord, error) {
	return domain.RefreshRecord{}, errDown
}

func (downSessions) Ping(context.Context) error { return errDown }

func TestStoreUnavailableIs503(t *testing.T) {
	t.Parallel()

	healthy := newMemoryServer(t)
	tok := healthy.joinAndLogin(t, "guest@example.com")

	s := newTestServer(t, memory.NewStore(), downSessions{Sessions: memory.NewSessions()})

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", tok.AccessToken, nil)
	requireError(t, rec, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = s.do(t, http.MethodGet, "/v1/members/me", tok.AccessToken, nil)
	requireError(t, rec, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable)

	rec = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	health := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "ok", health.Checks.Database)
	require.Contains(t, health.Checks.Sessions, "connection refused")
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)

	rec := s.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", decode[authsdk.HealthResponse](t, rec).Version)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[authsdk.HealthResponse](t, rec)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "ok", health.Checks.Sessions)
}

func TestLoginIsRateLimited(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)

	var last *httptest.ResponseRecorder
	for range 10 {
		last = s.do(t, http.MethodPost, "/v1/members/login", "", authsdk.LoginRequest{
			Email: "guest@example.com", Password: "guess",
		})
		if last.Code == http.StatusTooManyRequests {
			break
		}
		require.Equal(t, http.StatusUnauthorized, last.Code)
	}
	requireError(t, last, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimitExceeded)
	require.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	st := memory.NewStore()
	svc := service.NewSessionService(jwtx.NewCodec("stay-auth"), st.Sessions(), time.Minute, time.Hour)
	reg := prometheus.NewRegistry()
	svc.Metrics = service.NewSessionMetrics(reg)

	r := NewRouter("test", st, 5*time.Second, slogx.Discard())
	r.SessionService = svc
	r.MemberService = &service.MemberService{Members: st.Members(), Sessions: svc}
	r.Registry = reg
	r.ApplyRoutes()
	s := &testServer{router: r, sessions: svc}

	tok := s.joinAndLogin(t, "metrics@example.com")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/members/me", tok.AccessToken, nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `http_requests_total{code="200",route="GET /v1/members/me"} 1`)
	require.Contains(t, body, `stay_session_operations_total{op="issue",result="ok"} 1`)
	require.Contains(t, body, `stay_session_operations_total{op="validate",result="ok"} 1`)
}

func TestAuthenticateCarriesRole(t *testing.T) {
	t.Parallel()

	s := newMemoryServer(t)
	tok := s.joinAndLogin(t, "role@example.com")

	p, err := s.router.authenticate(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, tok.MemberID, p.Subject)
	require.Equal(t, "role@example.com", p.Identity)
	require.Equal(t, domain.RoleUser, p.Role)
}
