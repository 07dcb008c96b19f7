package httpx

import (
	"context"
	"net/http"
)

// Authenticator validates a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (Principal, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}

// ErrorWriter renders err as an HTTP response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthnMiddleware requires a valid bearer token and stores the resulting
// Principal in the request context. Header and validation failures are
// rendered by fail.
func AuthnMiddleware(a Authenticator, fail ErrorWriter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerFromRequest(r)
			if err != nil {
				fail(w, r, err)
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
