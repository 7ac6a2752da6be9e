package backend

import (
	"context"
	"net/http"
)

const (
	PathLogin     = "auth/login"
	PathCheckAuth = "auth/check-auth"
	PathRefresh   = "auth/refresh-token"
	PathLogout    = "auth/logout"
)

// Login authenticates with email and password. The server sets session cookies.
func (c *Client) Login(ctx context.Context, email, password string) (UserProfile, error) {
	var p UserProfile
	err := c.call(ctx, http.MethodPost, PathLogin, credentials{Email: email, Password: password}, &p)
	return p, err
}

// CheckAuth asks the server who the session cookies belong to.
func (c *Client) CheckAuth(ctx context.Context) (UserProfile, error) {
	var p UserProfile
	err := c.call(ctx, http.MethodGet, PathCheckAuth, nil, &p)
	return p, err
}

// RefreshToken renews the access token cookie using the refresh cookie.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, PathRefresh, nil, nil)
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, PathLogout, nil, nil)
}
