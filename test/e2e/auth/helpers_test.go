package auth_test

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/core-miniproject/stay/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * This includes container setup, member setup and assertions.
 */

const (
	testImageName = "stay-auth-test:latest"

	memberPassword = "correct horse battery"
)

// relaxedRateLimits keeps tests that make many rapid requests away from the
// production limits.
var relaxedRateLimits = map[string]string{
	"RATELIMIT_STRICT_REQUESTS":   "1000",
	"RATELIMIT_STRICT_WINDOW_SEC": "60",
	"RATELIMIT_STRICT_BURST":      "1000",
	"RATELIMIT_MODERATE_REQUESTS": "1000",
	"RATELIMIT_MODERATE_BURST":    "1000",
}

// TestMain builds the Docker image once before all tests and cleans it up
// after all tests complete.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stdout, "skipping e2e tests in short mode")
		os.Exit(0)
	}

	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

type containerOption func(*testcontainers.ContainerRequest)

func withEnv(env map[string]string) containerOption {
	return func(req *testcontainers.ContainerRequest) {
		maps.Copy(req.Env, env)
	}
}

func withNetwork(name string) containerOption {
	return func(req *testcontainers.ContainerRequest) {
		req.Networks = append(req.Networks, name)
	}
}

// setupAuthContainer starts the auth service with relaxed rate limits and
// returns its base URL. The container is terminated when the test ends.
func setupAuthContainer(t *testing.T, opts ...containerOption) string {
	t.Helper()
	return startAuthContainer(t, append([]containerOption{withEnv(relaxedRateLimits)}, opts...)...)
}

// setupAuthContainerWithDefaultRateLimits is for tests that check rate
// limiting itself.
func setupAuthContainerWithDefaultRateLimits(t *testing.T) string {
	t.Helper()
	return startAuthContainer(t)
}

func startAuthContainer(t *testing.T, opts ...containerOption) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"DATABASE_FILE":    "/data/auth.db",
			"PEPPER_FILE":      "/data/pepper",
			"AUTH_ISSUER":      "stay-auth",
			"ACCESS_TOKEN_TTL": "30m",
			"ENV":              "test",
			"LOG_LEVEL":        "info",
			"LOG_FORMAT":       "json",
		},
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}
	for _, opt := range opts {
		opt(&req)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// joinMember registers a member with memberPassword.
func joinMember(t *testing.T, client *authsdk.SDKClient, email string) *authsdk.MemberResponse {
	t.Helper()

	m, err := client.Join(t.Context(), authsdk.JoinRequest{
		Email:    email,
		Password: memberPassword,
		Name:     "E2E Guest",
	})
	require.NoError(t, err, "join should succeed")
	require.NotEmpty(t, m.ID)
	return m
}

// assertTokenResponse verifies a login response has all required fields.
func assertTokenResponse(t *testing.T, resp *authsdk.TokenResponse) {
	t.Helper()
	require.NotNil(t, resp)
	require.NotEmpty(t, resp.AccessToken, "Access token should not be empty")
	require.NotEmpty(t, resp.RefreshToken, "Refresh token should not be empty")
	require.NotEmpty(t, resp.MemberID, "Member id should not be empty")
	require.Equal(t, "Bearer", resp.TokenType, "Token type should be Bearer")
	require.Positive(t, resp.ExpiresIn)
}

// assertAPIError checks err is an *authsdk.APIError with the given code.
func assertAPIError(t *testing.T, err error, want *authsdk.APIError, context string) {
	t.Helper()
	require.Error(t, err, context)
	require.ErrorIs(t, err, want, "%s - got: %v", context, err)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
