package authsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotReady is returned by Readiness alongside the decoded report when a
// dependency check failed.
var ErrNotReady = errors.New("authsdk: service not ready")

// Liveness reports whether the process is up.
func (c *SDKClient) Liveness(ctx context.Context) (*HealthResponse, error) {
	health, _, err := c.probe(ctx, "/livez")
	return health, err
}

// Readiness reports the database and session store checks. A 503 still
// returns the report so callers can see which check failed.
func (c *SDKClient) Readiness(ctx context.Context) (*HealthResponse, error) {
	health, status, err := c.probe(ctx, "/readyz")
	if err != nil {
		return nil, err
	}
	if status == http.StatusServiceUnavailable {
		return health, ErrNotReady
	}
	return health, nil
}

func (c *SDKClient) probe(ctx context.Context, path string) (*HealthResponse, int, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusServiceUnavailable:
	default:
		if apiErr := parseErrorResponse(resp, body); apiErr != nil {
			return nil, resp.StatusCode, apiErr
		}
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, resp.StatusCode, nil
}
