package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/core-miniproject/stay/internal/auth/domain"
	"github.com/core-miniproject/stay/internal/auth/service"
	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/core-miniproject/stay/pkg/httpx"
)

type SessionHandler struct {
	SessionService *service.SessionService
}

// HandleRefresh godoc
//
//	@Summary		Refresh an access token
//	@Description	Presents the member's latest access token, expired or not, and returns its replacement. The presented token stops working.
//	@Description	With rotate=true the refresh value is replaced as well and returned in refresh_token.
//	@Tags			Session
//	@Security		BearerAuth
//	@Produce		json
//	@Param			rotate	query		bool					false	"Also rotate the refresh value"
//	@Success		200		{object}	authsdk.TokenResponse	"The new access token"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed bearer token"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Token already refreshed, forged, or no session"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Failure		503		{object}	authsdk.ErrorResponse	"Store unavailable, retry later"
//	@Header			200		{string}	Cache-Control			"no-store"
//	@Router			/v1/auth/refresh [post].
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	presented, err := httpx.BearerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rotate, _ := strconv.ParseBool(r.URL.Query().Get("rotate"))
	if rotate {
		next, refresh, err := h.SessionService.RotateRefresh(r.Context(), presented)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tokenResponse(next, refresh))
		return
	}

	next, err := h.SessionService.Refresh(r.Context(), presented)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(next, ""))
}

// HandleLogout godoc
//
//	@Summary		Logout
//	@Description	Ends the caller's session. Every access token of the member stops working.
//	@Tags			Session
//	@Security		BearerAuth
//	@Success		204	"Session ended"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing, invalid or superseded access token"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Store unavailable, retry later"
//	@Router			/v1/auth/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFrom(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.SessionService.Revoke(r.Context(), p.Subject); err != nil {
		writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

func tokenResponse(tok domain.AccessToken, refresh string) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  tok.Value,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(tok.ExpiresAt).Round(time.Second).Seconds()),
		MemberID:     tok.SubjectID,
	}
}
