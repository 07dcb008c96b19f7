package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the stay auth service. It is stateless, Session keeps
// tokens between calls.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Join registers a new member.
func (c *SDKClient) Join(ctx context.Context, req JoinRequest) (*MemberResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/members/join", "", req)
	if err != nil {
		return nil, err
	}

	var m MemberResponse
	if err := decodeJSON(resp, &m, http.StatusCreated); err != nil {
		return nil, err
	}
	return &m, nil
}

// Login exchanges credentials for a token pair.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/members/login", "", LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Refresh presents the latest access token, expired or not, and returns its
// replacement. With rotate the refresh value is replaced too and returned in
// RefreshToken.
func (c *SDKClient) Refresh(ctx context.Context, accessToken string, rotate bool) (*TokenResponse, error) {
	path := "/v1/auth/refresh"
	if rotate {
		path += "?rotate=true"
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, nil, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Logout ends the session the access token belongs to.
func (c *SDKClient) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", nil, bearer(accessToken))
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Me returns the member the access token was issued to.
func (c *SDKClient) Me(ctx context.Context, accessToken string) (*MemberResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/members/me", nil, bearer(accessToken))
	if err != nil {
		return nil, err
	}

	var m MemberResponse
	if err := decodeJSON(resp, &m, http.StatusOK); err != nil {
		return nil, err
	}
	return &m, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
