package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/store"
	"github.com/core-miniproject/stay/pkg/cryptox"
	"github.com/core-miniproject/stay/pkg/idx"
	"github.com/core-miniproject/stay/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	ErrDuplicateEmail     = errors.New("duplicate_email")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrMemberNotFound     = errors.New("member_not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
)

type JoinRequest struct {
	Email       string
	Password    string
	Name        string
	PhoneNumber string
}

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Member  domain.Member
	Access  domain.AccessToken
	Refresh string
}

// MemberService covers sign-up and password login. Credentials are checked
// here, token issuance is delegated to the SessionService.
type MemberService struct {
	Members  store.Members
	Sessions *SessionService
}

// Join registers a new member with the USER role.
func (s *MemberService) Join(ctx context.Context, req JoinRequest) (domain.Member, error) {
	email, err := normaliseEmail(req.Email)
	if err != nil {
		return domain.Member{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Member{}, errors.Join(ErrInvalidRequest, errors.New("name is required"))
	}
	if n := utf8.RuneCountInString(req.Password); n < MinPasswordLength || n > MaxPasswordLength {
		return domain.Member{}, errors.Join(ErrInvalidRequest, errors.New("password must be 8 to 128 characters"))
	}

	exists, err := s.Members.ExistsByEmail(ctx, email)
	if err != nil {
		return domain.Member{}, unavailable(err)
	}
	if exists {
		return domain.Member{}, ErrDuplicateEmail
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return domain.Member{}, err
	}

	now := time.Now().UTC()
	m := domain.Member{
		ID:           idx.New().String(),
		Email:        email,
		Name:         name,
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Members.CreateMember(ctx, m); err != nil {
		// lost a race with another join for the same email
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Member{}, ErrDuplicateEmail
		}
		return domain.Member{}, unavailable(err)
	}

	slogx.FromContext(ctx).Info("member joined", slogx.Subject(m.ID))
	return m, nil
}

// dummyHash keeps login timing the same for unknown emails.
var dummyHash = sync.OnceValue(func() string {
	h, _ := cryptox.HashPassword("not-a-real-password")
	return h
})

// Login checks the password and issues a session for the member. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *MemberService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email, err := normaliseEmail(email)
	if err != nil || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	m, err := s.Members.GetMemberByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = cryptox.VerifyPassword(password, dummyHash())
		return LoginResult{}, ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, unavailable(err)
	}

	if err := cryptox.VerifyPassword(password, m.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("login rejected", slogx.Subject(m.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	access, refresh, err := s.Sessions.IssueWithRole(ctx, m.ID, m.Email, m.Role)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Member: m, Access: access, Refresh: refresh}, nil
}

// GetMemberInfo returns the member for an authenticated subject.
func (s *MemberService) GetMemberInfo(ctx context.Context, memberID string) (domain.Member, error) {
	id, err := idx.Parse(memberID)
	if err != nil {
		return domain.Member{}, ErrMemberNotFound
	}
	m, err := s.Members.GetMemberByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Member{}, ErrMemberNotFound
		}
		return domain.Member{}, unavailable(err)
	}
	return m, nil
}

// Logout revokes the member's session.
func (s *MemberService) Logout(ctx context.Context, memberID string) error {
	return s.Sessions.Revoke(ctx, memberID)
}

func normaliseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 254 {
		return "", errors.Join(ErrInvalidRequest, errors.New("invalid email address"))
	}
	return email, nil
}
