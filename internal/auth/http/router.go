package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/httpx"
	"github.com/core-miniproject/stay/pkg/slogx"

	_ "github.com/core-miniproject/stay/api/auth" // Swagger docs
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	SessionService *service.SessionService
	MemberService  *service.MemberService

	// Registry enables request metrics and GET /metrics when set.
	Registry *prometheus.Registry
}

func NewRouter(buildVersion string, st store.Store, requestTimeout time.Duration, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Recover sits inside the logging middleware so panics are logged with
	// the request id.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.Timeout(requestTimeout),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerMembers()
	r.registerSession()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	if r.Registry != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{}))
		// Innermost, so it sees the pattern the mux matched.
		r.middlewares = append(r.middlewares, httpx.NewMetrics(r.Registry).Middleware())
	}
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Stay Authentication Service API
//	@version		0.1.0
//	@description	Member sign-up, login and the access token lifecycle for the stay booking backend.
//	@description
//	@description				Every access token is signed with its own secret. Refreshing a token invalidates it, and logging out invalidates every token of the member.
//
//	@contact.name				Stay Core Team
//	@contact.url				https://github.com/core-miniproject/stay
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authenticate adapts SessionService.Validate to the httpx middleware.
func (r *Router) authenticate(ctx context.Context, token string) (httpx.Principal, error) {
	p, err := r.SessionService.Validate(ctx, token)
	if err != nil {
		return httpx.Principal{}, err
	}
	return httpx.Principal{Subject: p.SubjectID, Identity: p.Identity, Role: p.Role}, nil
}

func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(httpx.AuthenticatorFunc(r.authenticate), writeError)
}

func (r *Router) registerMembers() {
	h := &MembersHandler{MemberService: r.MemberService}

	// join and login - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /v1/members/join",
		httpx.Chain(http.HandlerFunc(h.HandleJoin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/members/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Authenticated endpoint - lenient rate limit by member
	r.Mux.Handle("GET /v1/members/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			r.authn(),
			httpx.RateLimitByPrincipal(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSession() {
	h := &SessionHandler{SessionService: r.SessionService}

	// Refresh accepts expired tokens, so it cannot sit behind authn.
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn(),
			httpx.RateLimitByPrincipal(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.SessionService.Sessions),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
