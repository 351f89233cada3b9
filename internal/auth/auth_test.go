package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bibledive/bibledive-go/internal/auth"
)

func signedToken(t *testing.T, subject string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// authServer fakes the gateway's REST auth endpoints.
func authServer(t *testing.T, pair auth.TokenPair, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(pair)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeConn records session-driven connection activity.
type fakeConn struct {
	mu         sync.Mutex
	connects   int
	closes     int
	connectErr error
	authFail   func()
}

func (c *fakeConn) Connect(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func (c *fakeConn) OnAuthFailure(fn func()) { c.authFail = fn }

func (c *fakeConn) closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeStore struct{ cleared int }

func (s *fakeStore) Clear() { s.cleared++ }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestUserIDFromToken(t *testing.T) {
	token := signedToken(t, "42", time.Hour)
	got, err := auth.UserIDFromToken(token)
	if err != nil {
		t.Fatalf("UserIDFromToken() error = %v", err)
	}
	if got != "42" {
		t.Errorf("UserIDFromToken() = %q, want 42", got)
	}
}

func TestUserIDFromToken_NoSubject(t *testing.T) {
	token := signedToken(t, "", time.Hour)
	if _, err := auth.UserIDFromToken(token); err == nil {
		t.Error("UserIDFromToken() accepted a token without a subject")
	}
}

func TestUserIDFromToken_Garbage(t *testing.T) {
	if _, err := auth.UserIDFromToken("not-a-jwt"); err == nil {
		t.Error("UserIDFromToken() accepted garbage")
	}
}

func TestCredentials_AccessTokenWhenLoggedOut(t *testing.T) {
	creds := auth.NewCredentials(nil)
	if _, err := creds.AccessToken(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Errorf("AccessToken() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestCredentials_RefreshesExpiringToken(t *testing.T) {
	fresh := signedToken(t, "42", time.Hour)
	srv := authServer(t, auth.TokenPair{AccessToken: fresh, RefreshToken: "r2"}, http.StatusOK)

	creds := auth.NewCredentials(auth.NewAPIClient(srv.URL))
	// Inside the refresh leeway, so the next read must go through the API.
	creds.SetTokens(signedToken(t, "42", time.Second), "r1")

	got, err := creds.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != fresh {
		t.Error("AccessToken() returned the stale token instead of refreshing")
	}
}

func TestCredentials_KeepsValidToken(t *testing.T) {
	srv := authServer(t, auth.TokenPair{}, http.StatusInternalServerError)

	creds := auth.NewCredentials(auth.NewAPIClient(srv.URL))
	token := signedToken(t, "42", time.Hour)
	creds.SetTokens(token, "r1")

	// The API would fail, so a refresh attempt here is itself a bug.
	got, err := creds.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if got != token {
		t.Errorf("AccessToken() = %q, want the stored token", got)
	}
}

func TestSession_LoginOpensConnection(t *testing.T) {
	token := signedToken(t, "42", time.Hour)
	srv := authServer(t, auth.TokenPair{AccessToken: token, RefreshToken: "r1"}, http.StatusOK)

	api := auth.NewAPIClient(srv.URL)
	creds := auth.NewCredentials(api)
	conn := &fakeConn{}
	sess := auth.NewSession(testLogger(), api, creds, conn, "ws://gateway/ws")

	userID, err := sess.Login(context.Background(), "dani", "hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if userID != "42" {
		t.Errorf("Login() userID = %q, want 42", userID)
	}
	if !sess.LoggedIn() {
		t.Error("LoggedIn() = false after a successful login")
	}
	if conn.connects != 1 {
		t.Errorf("connects = %d, want 1", conn.connects)
	}
}

func TestSession_LoginRejected(t *testing.T) {
	srv := authServer(t, auth.TokenPair{}, http.StatusUnauthorized)

	api := auth.NewAPIClient(srv.URL)
	creds := auth.NewCredentials(api)
	sess := auth.NewSession(testLogger(), api, creds, &fakeConn{}, "ws://gateway/ws")

	if _, err := sess.Login(context.Background(), "dani", "wrong"); err == nil {
		t.Fatal("Login() succeeded against a 401")
	}
	if sess.LoggedIn() {
		t.Error("LoggedIn() = true after a rejected login")
	}
}

func TestSession_ConnectFailureTearsDown(t *testing.T) {
	token := signedToken(t, "42", time.Hour)
	srv := authServer(t, auth.TokenPair{AccessToken: token, RefreshToken: "r1"}, http.StatusOK)

	api := auth.NewAPIClient(srv.URL)
	creds := auth.NewCredentials(api)
	conn := &fakeConn{connectErr: errors.New("gateway unreachable")}
	store := &fakeStore{}
	sess := auth.NewSession(testLogger(), api, creds, conn, "ws://gateway/ws", store)

	if _, err := sess.Login(context.Background(), "dani", "hunter2"); err == nil {
		t.Fatal("Login() succeeded despite the connection failing")
	}
	if sess.LoggedIn() {
		t.Error("LoggedIn() = true after a failed connect")
	}
	if _, err := creds.AccessToken(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Error("tokens survived the teardown")
	}
	if store.cleared == 0 {
		t.Error("store not cleared by the teardown")
	}
}

func TestSession_LogoutClearsEverything(t *testing.T) {
	token := signedToken(t, "42", time.Hour)
	srv := authServer(t, auth.TokenPair{AccessToken: token, RefreshToken: "r1"}, http.StatusOK)

	api := auth.NewAPIClient(srv.URL)
	creds := auth.NewCredentials(api)
	conn := &fakeConn{}
	chats, lessons := &fakeStore{}, &fakeStore{}
	sess := auth.NewSession(testLogger(), api, creds, conn, "ws://gateway/ws", chats, lessons)

	if _, err := sess.Login(context.Background(), "dani", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	sess.Logout()

	if sess.LoggedIn() {
		t.Error("LoggedIn() = true after logout")
	}
	if conn.closed() != 1 {
		t.Errorf("closes = %d, want 1", conn.closed())
	}
	if chats.cleared != 1 || lessons.cleared != 1 {
		t.Errorf("stores cleared %d/%d times, want 1/1", chats.cleared, lessons.cleared)
	}
	if _, err := creds.AccessToken(context.Background()); !errors.Is(err, auth.ErrNotAuthenticated) {
		t.Error("tokens survived logout")
	}
}

func TestSession_AuthFailureTriggersLogout(t *testing.T) {
	token := signedToken(t, "42", time.Hour)
	srv := authServer(t, auth.TokenPair{AccessToken: token, RefreshToken: "r1"}, http.StatusOK)

	api := auth.NewAPIClient(srv.URL)
	creds := auth.NewCredentials(api)
	conn := &fakeConn{}
	store := &fakeStore{}
	sess := auth.NewSession(testLogger(), api, creds, conn, "ws://gateway/ws", store)

	if _, err := sess.Login(context.Background(), "dani", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// The connection reporting a rejected token behaves like an explicit
	// logout.
	conn.authFail()

	if sess.LoggedIn() {
		t.Error("LoggedIn() = true after an auth failure")
	}
	if store.cleared == 0 {
		t.Error("store not cleared after an auth failure")
	}
}
