package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/httpx"
	"github.com/core-miniproject/stay/pkg/slogx"
)

// writeError maps service and transport errors onto API errors. It doubles
// as the httpx.ErrorWriter for the authentication middleware.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(r, err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed", slogx.Err(err))
	}
	apiErr.WriteError(w)
}

func toAPIError(r *http.Request, err error) *authsdk.APIError {
	switch {
	case errors.Is(err, httpx.ErrMalformedAuthorization):
		if r.Header.Get("Authorization") == "" {
			return authsdk.ErrInvalidToken.WithDescription("missing bearer token")
		}
		return authsdk.ErrInvalidRequest.WithDescription("malformed authorization header")
	case errors.Is(err, service.ErrMalformed):
		return authsdk.ErrInvalidRequest.WithDescription("malformed access token")
	case errors.Is(err, httpx.ErrInvalidBody):
		return authsdk.ErrInvalidRequest.WithDescription("request body must be a single JSON object")
	case errors.Is(err, service.ErrInvalidRequest):
		return authsdk.ErrInvalidRequest.WithDescription(validationMessage(err))

	case errors.Is(err, service.ErrSessionNotFound):
		return authsdk.ErrSessionNotFound
	// An expired token reads exactly like a forged one.
	case errors.Is(err, service.ErrExpired),
		errors.Is(err, service.ErrStaleOrForgedToken),
		errors.Is(err, service.ErrInvalidSignature):
		return authsdk.ErrInvalidToken

	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrDuplicateEmail):
		return authsdk.ErrDuplicateEmail
	case errors.Is(err, service.ErrMemberNotFound):
		return authsdk.ErrNotFound.WithDescription("member not found")

	case errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return authsdk.ErrTemporarilyUnavailable
	default:
		return authsdk.ErrServerError
	}
}

// validationMessage strips the sentinel from a joined validation error.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error())
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return authsdk.ErrInvalidRequest.Description
	}
	return msg
}
