package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// ErrMalformedAuthorization is returned for an Authorization header that is
// not of the form "Bearer <token>".
var ErrMalformedAuthorization = errors.New("httpx: malformed authorization header")

// BearerToken extracts the token from a "<scheme> <token>" header value. The
// scheme must be Bearer (case-insensitive) and the token must be non-empty.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedAuthorization
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// BearerFromRequest is BearerToken applied to r's Authorization header.
func BearerFromRequest(r *http.Request) (string, error) {
	return BearerToken(r.Header.Get("Authorization"))
}
