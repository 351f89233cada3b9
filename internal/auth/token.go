// Package auth owns the access-token lifecycle: the HTTP login/refresh
// client, the in-memory token source, and the session that gates the
// realtime connection on authentication state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAuthenticated reports token access while logged out.
var ErrNotAuthenticated = errors.New("not authenticated")

// refreshLeeway refreshes a token this close to expiry instead of handing it
// out and letting the gateway reject it mid-handshake.
const refreshLeeway = 30 * time.Second

// Credentials is an in-memory token pair that transparently refreshes an
// expired access token through the API client.
type Credentials struct {
	api *APIClient

	mu      sync.Mutex
	access  string
	refresh string
}

// NewCredentials creates an empty credential holder.
func NewCredentials(api *APIClient) *Credentials {
	return &Credentials{api: api}
}

// SetTokens stores a token pair after login or account creation.
func (c *Credentials) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
	c.refresh = refresh
}

// Clear drops both tokens.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = ""
	c.refresh = ""
}

// AccessToken returns the current access token, refreshing it first when it
// is expired or about to expire.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.access == "" {
		return "", ErrNotAuthenticated
	}
	if !tokenExpiring(c.access) {
		return c.access, nil
	}
	if c.refresh == "" || c.api == nil {
		return "", ErrNotAuthenticated
	}
	pair, err := c.api.Refresh(ctx, c.refresh)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	c.access = pair.AccessToken
	if pair.RefreshToken != "" {
		c.refresh = pair.RefreshToken
	}
	return c.access, nil
}

// UserID derives the user id from the access token's subject claim.
func (c *Credentials) UserID(ctx context.Context) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return UserIDFromToken(token)
}

// UserIDFromToken extracts the subject claim without verifying the
// signature. Verification is the gateway's job; the client only needs the
// identity baked into the token it was handed.
func UserIDFromToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token claims: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject claim")
	}
	return claims.Subject, nil
}

func tokenExpiring(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) < refreshLeeway
}
