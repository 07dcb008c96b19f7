package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
	ErrEmptySecret  = errors.New("jwtx: empty secret")
)

// Codec signs and verifies HS256 access tokens. Every token is signed with
// its own secret, the codec itself holds no key material.
type Codec struct {
	// Issuer written into and required from every token. Empty disables
	// the check.
	Issuer string

	// Leeway allows small clock skew when validating exp.
	Leeway time.Duration

	// Now is the clock used for expiry checks, time.Now when nil.
	Now func() time.Time
}

// NewCodec returns a Codec for the given issuer.
func NewCodec(issuer string) *Codec {
	return &Codec{Issuer: issuer}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Mint builds claims for subject/identity and signs them with secret.
func (c *Codec) Mint(subject, identity string, ttl time.Duration, secret []byte) (string, Claims, error) {
	return c.MintRole(subject, identity, "", ttl, secret)
}

// MintRole is Mint with a role claim. An empty role is omitted.
func (c *Codec) MintRole(subject, identity, role string, ttl time.Duration, secret []byte) (string, Claims, error) {
	claims := NewAccessClaims(subject, identity, c.Issuer, ttl, c.now())
	claims.Role = role
	signed, err := c.Encode(claims, secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Encode signs claims with secret. The signature covers the whole payload,
// so changing the identity or the expiry invalidates it.
func (c *Codec) Encode(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Decode verifies raw against secret and returns its claims.
//
// A token that does not verify under secret (wrong or rotated secret,
// tampered payload, broken structure) yields ErrInvalidSig. A token that
// verifies but is past its expiry yields ErrExpired together with the
// decoded claims, so callers can tell "needs refresh" from "reject".
func (c *Codec) Decode(raw string, secret []byte) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrEmptySecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalidClaim
	}
	if err := claims.ValidateIssuer(c.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(c.now(), c.Leeway); err != nil {
		if errors.Is(err, ErrExpired) {
			return claims, err
		}
		return Claims{}, err
	}

	return claims, nil
}

// Peek parses raw without checking its signature, far enough to recover
// the claimed subject. Nothing returned by Peek may be trusted until the
// token has been through Decode.
func (c *Codec) Peek(raw string) (Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrMalformed
	}

	return claims, nil
}
