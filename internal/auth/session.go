package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Conn is the realtime connection the session gates. Satisfied by
// ws.Manager.
type Conn interface {
	Connect(ctx context.Context, endpoint string) error
	Close()
	OnAuthFailure(fn func())
}

// Clearer is any store that empties itself on logout.
type Clearer interface {
	Clear()
}

// Session owns the "is the user authenticated" state. Logging in opens the
// realtime connection with the token attached; logging out — whether by user
// action or an authentication failure observed on the connection — tears the
// connection down and clears every dependent store. One path for both, so the
// UI never sits half-authenticated.
type Session struct {
	log      *slog.Logger
	api      *APIClient
	creds    *Credentials
	conn     Conn
	endpoint string
	stores   []Clearer

	mu       sync.Mutex
	loggedIn bool
}

// NewSession wires the session to the connection and the stores it clears on
// logout. The connection's auth-failure signal is hooked to the logout path.
func NewSession(log *slog.Logger, api *APIClient, creds *Credentials, conn Conn, endpoint string, stores ...Clearer) *Session {
	s := &Session{
		log:      log,
		api:      api,
		creds:    creds,
		conn:     conn,
		endpoint: endpoint,
		stores:   stores,
	}
	conn.OnAuthFailure(func() {
		s.log.Warn("authentication failure on connection, logging out")
		s.Logout()
	})
	return s
}

// LoggedIn reports the authentication state.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Login exchanges credentials for tokens and opens the realtime connection.
// Returns the user id derived from the access token.
func (s *Session) Login(ctx context.Context, username, password string) (string, error) {
	pair, err := s.api.Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	return s.establish(ctx, pair)
}

// CreateAccount registers a new user and opens the realtime connection under
// the fresh identity.
func (s *Session) CreateAccount(ctx context.Context, email, username, password string) (string, error) {
	pair, err := s.api.CreateAccount(ctx, email, username, password)
	if err != nil {
		return "", fmt.Errorf("account creation failed: %w", err)
	}
	return s.establish(ctx, pair)
}

// Logout closes the connection, drops the tokens, and clears every dependent
// store. Safe to call from any state.
func (s *Session) Logout() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()

	s.conn.Close()
	s.creds.Clear()
	for _, store := range s.stores {
		store.Clear()
	}
	s.log.Info("logged out")
}

func (s *Session) establish(ctx context.Context, pair TokenPair) (string, error) {
	s.creds.SetTokens(pair.AccessToken, pair.RefreshToken)

	userID, err := UserIDFromToken(pair.AccessToken)
	if err != nil {
		s.creds.Clear()
		return "", err
	}
	if err := s.conn.Connect(ctx, s.endpoint); err != nil {
		// Same teardown as an explicit logout: no half-authenticated state.
		s.Logout()
		return "", err
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()
	return userID, nil
}
