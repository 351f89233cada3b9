package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TokenPair is what the gateway returns on login, account creation, and
// refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// APIClient is the thin HTTP client for the gateway's auth endpoints.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a client against the gateway's REST base URL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for a token pair.
func (a *APIClient) Login(ctx context.Context, username, password string) (TokenPair, error) {
	return a.post(ctx, "/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// CreateAccount registers a new user and returns its first token pair.
func (a *APIClient) CreateAccount(ctx context.Context, email, username, password string) (TokenPair, error) {
	return a.post(ctx, "/create_user", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a fresh pair.
func (a *APIClient) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return a.post(ctx, "/refresh_token", map[string]string{
		"refreshToken": refreshToken,
	})
}

func (a *APIClient) post(ctx context.Context, path string, body any) (TokenPair, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenPair{}, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return TokenPair{}, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return pair, nil
}
