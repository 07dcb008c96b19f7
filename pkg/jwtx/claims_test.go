package jwtx_test

import (
	"testing"
	"time"

	"github.com/core-miniproject/stay/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "stay-auth",
		},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("stay-auth"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		err := c.ValidateIssuer("booking-service")
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})
}

func TestValidateExpiry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(1 * time.Minute)),
			},
		}
		require.NoError(t, claims.ValidateExpiry(now, 0))
	})

	t.Run("expired token", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
			},
		}
		require.ErrorIs(t, claims.ValidateExpiry(now, 0), jwtx.ErrExpired)
	})

	t.Run("leeway absorbs skew", func(t *testing.T) {
		claims := &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
			},
		}
		require.NoError(t, claims.ValidateExpiry(now, 30*time.Second))
	})

	t.Run("missing exp", func(t *testing.T) {
		claims := &jwtx.Claims{}
		require.ErrorIs(t, claims.ValidateExpiry(now, 0), jwtx.ErrInvalidClaim)
	})
}

func TestNewAccessClaims(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	c := jwtx.NewAccessClaims("member-1", "guest@example.com", "stay-auth", 30*time.Minute, now)

	require.Equal(t, "member-1", c.Subject)
	require.Equal(t, "guest@example.com", c.Identity)
	require.Equal(t, "stay-auth", c.Issuer)
	require.Equal(t, now.Add(30*time.Minute), c.Expiry())
	require.NotEmpty(t, c.ID)

	other := jwtx.NewAccessClaims("member-1", "guest@example.com", "stay-auth", 30*time.Minute, now)
	require.NotEqual(t, c.ID, other.ID, "jti should be unique per token")
}
