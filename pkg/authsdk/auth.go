package authsdk

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// Login exchanges email/password credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login",
		loginRequest{Email: email, Password: password}, &resp, "", true)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account and returns the same shape as Login.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, &resp, "", true)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/refresh-token",
		refreshRequest{RefreshToken: refreshToken}, &resp, "", false)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context, accessToken string) (*UserProfile, error) {
	var profile UserProfile
	err := c.doJSON(ctx, http.MethodGet, "/auth/profile", nil, &profile, accessToken, false)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GitHubCallback completes the GitHub OAuth exchange with the code/state
// pair delivered on the redirect.
func (c *Client) GitHubCallback(ctx context.Context, code, state string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/github/callback",
		githubCallbackRequest{Code: code, State: state}, &resp, "", true)
	if err != nil {
		return nil, err
	}

	if c.Logger != nil {
		c.Logger.Debug("github exchange complete", slog.Bool("has_refresh", resp.RefreshToken != ""))
	}
	return &resp, nil
}

// GitHubLoginURL asks the backend for the provider authorization URL to
// send the user to. purpose distinguishes plain login from account linking.
func (c *Client) GitHubLoginURL(ctx context.Context, purpose string) (string, error) {
	q := url.Values{"getUrl": {"true"}}
	if purpose != "" {
		q.Set("source", purpose)
	}

	var resp githubURLResponse
	err := c.doJSON(ctx, http.MethodGet, "/auth/github/login?"+q.Encode(), nil, &resp, "", false)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}
