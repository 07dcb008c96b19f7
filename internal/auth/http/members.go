package http

import (
	"net/http"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/httpx"
)

type MembersHandler struct {
	MemberService *service.MemberService
}

// HandleJoin registers a member.
//
//	@Summary		Join
//	@Description	Registers a new member with the USER role.
//	@Tags			Members
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.JoinRequest		true	"email, password (8-128 chars), name, phone_number"
//	@Success		201		{object}	authsdk.MemberResponse	"The created member"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid body or validation failed"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable, retry later"
//	@Router			/v1/members/join [post].
func (h *MembersHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.JoinRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := h.MemberService.Join(r.Context(), service.JoinRequest{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, memberResponse(m))
}

// HandleLogin exchanges credentials for a token pair.
//
//	@Summary		Login
//	@Description	Checks the member's password and starts a new session. Any earlier session of the member is replaced.
//	@Tags			Members
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"email, password"
//	@Success		200		{object}	authsdk.TokenResponse	"Access token and refresh value"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid email or password"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable, retry later"
//	@Header			200		{string}	Cache-Control			"no-store"
//	@Router			/v1/members/login [post].
func (h *MembersHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.MemberService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(res.Access, res.Refresh))
}

// HandleMe returns the authenticated member.
//
//	@Summary		Current member
//	@Tags			Members
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MemberResponse	"The authenticated member"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or superseded access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Member no longer exists"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Store unavailable, retry later"
//	@Router			/v1/members/me [get].
func (h *MembersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFrom(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	m, err := h.MemberService.GetMemberInfo(r.Context(), p.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, memberResponse(m))
}

func memberResponse(m domain.Member) authsdk.MemberResponse {
	return authsdk.MemberResponse{
		ID:          m.ID,
		Email:       m.Email,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		Role:        m.Role,
		CreatedAt:   m.CreatedAt,
	}
}
