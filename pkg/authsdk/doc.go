/*
Package authsdk is a Go client for the stay auth service.

SDKClient wraps the raw endpoints:

	client := authsdk.NewSDKClient("https://auth.example.com")

	member, err := client.Join(ctx, authsdk.JoinRequest{
		Email:    "guest@example.com",
		Password: "correct horse",
		Name:     "Guest",
	})

	tok, err := client.Login(ctx, "guest@example.com", "correct horse")

# Refreshing

A refresh presents the latest access token, not the refresh value. The
server accepts the token even after it has expired, as long as it is still
the newest one issued for the member:

	next, err := client.Refresh(ctx, tok.AccessToken, false)

Each refresh invalidates the token it replaced, so presenting the same token
twice fails with ErrInvalidToken.

# Session

Session keeps the tokens and refreshes them when they are about to expire:

	session, err := client.LoginSession(ctx, email, password)
	me, err := session.Me(ctx)
	err = session.Logout(ctx)

# Errors

Every non-2xx response is returned as *APIError. Errors compare by code, so

	if errors.Is(err, authsdk.ErrSessionNotFound) {
		// log in again
	}

works regardless of the description the server sent.
*/
package authsdk
