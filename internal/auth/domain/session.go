package domain

import "time"

// AccessToken is a freshly minted access token. It is never mutated, a
// refresh always produces a new one.
type AccessToken struct {
	SubjectID string
	Identity  string
	Role      string
	ExpiresAt time.Time

	// Secret is the signing secret bound to this token. It only travels to
	// the refresh store, never to the client.
	Secret []byte `json:"-"`

	// Value is the signed token handed to the client.
	Value string
}

// RefreshRecord is the single live session for a subject.
type RefreshRecord struct {
	SubjectID string

	// RefreshHash is the fingerprint of the refresh value, the raw value is
	// only ever returned to the client.
	RefreshHash string

	// BoundSecret signed the most recently issued access token. Older tokens
	// for the subject no longer verify against it.
	BoundSecret []byte

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its refresh lifetime at now.
func (r RefreshRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Principal is who a validated access token speaks for.
type Principal struct {
	SubjectID string
	Identity  string
	Role      string
}
