package auth_test

import (
	"testing"

	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitLoginEndpoint verifies that login is rate limited.
// This endpoint has strict limits (5 req/min) to prevent brute force attacks.
func TestRateLimitLoginEndpoint(t *testing.T) {
	client := authsdk.NewSDKClient(setupAuthContainerWithDefaultRateLimits(t))

	for i := range 5 {
		_, err := client.Login(t.Context(), "guest@example.com", "wrong-password")
		assertAPIError(t, err, authsdk.ErrInvalidCredentials, "request before the limit")
		require.NotErrorIs(t, err, authsdk.ErrRateLimitExceeded, "request %d", i+1)
	}

	_, err := client.Login(t.Context(), "guest@example.com", "wrong-password")
	assertAPIError(t, err, authsdk.ErrRateLimitExceeded, "6th request should be rate limited")

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Positive(t, apiErr.RetryAfter)
}
