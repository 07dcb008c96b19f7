package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTL constants for the session flow. Services override them
// through configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived, refresh is expected once it lapses.
	DefaultAccessTokenTTL = 30 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for a refresh record.
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour
)

// Claims are the access-token claims. The subject is the stable member id
// the refresh record is keyed by, Identity is the claim the request is
// attributed to (the member's email).
type Claims struct {
	jwt.RegisteredClaims

	// Identity claim handed over by the login flow.
	Identity string `json:"idn"`

	// Role of the member at the time the session was issued.
	Role string `json:"role,omitempty"`
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(subject, identity, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Identity: identity,
	}
}

// NewJTI returns a random identifier for the "jti" claim so two tokens
// minted in the same second never share a payload.
func NewJTI() string {
	return uuid.NewString()
}

// Expiry returns the exp claim or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) at the given instant.
// The leeway absorbs small clock skew between instances.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}

	if now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	return nil
}
