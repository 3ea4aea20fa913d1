package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/migrations"
	"github.com/dmitrijs2005/geosnap/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/geosnap/internal/client/tokenstore"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// ---- helpers ----

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newStore(t *testing.T, db *sql.DB, clock *fakeClock) *tokenstore.Store {
	t.Helper()
	return tokenstore.New(credentials.NewSQLiteRepository(db), make([]byte, 32),
		tokenstore.WithClock(clock.Now), tokenstore.WithLeadWindow(5*time.Minute))
}

// ---- fake authorization server ----

type oauthServer struct {
	*httptest.Server

	wantVerifier string

	mu           sync.Mutex
	usedCodes    map[string]bool
	issued       int
	refreshToken string
	lastRevoke   url.Values

	refreshDelay  time.Duration
	refreshStatus int
	revokeStatus  int

	exchanges int32
	refreshes int32
	revokes   int32
}

func newOAuthServer(t *testing.T, wantVerifier string) *oauthServer {
	t.Helper()
	s := &oauthServer{wantVerifier: wantVerifier, usedCodes: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", s.token)
	mux.HandleFunc("/oauth/revoke", s.revoke)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *oauthServer) config() OAuthConfig {
	return OAuthConfig{
		ClientID:    "geosnap-cli",
		RedirectURI: "geosnap://oauth-callback",
		AuthURL:     s.URL + "/oauth/authorize",
		TokenURL:    s.URL + "/oauth/token",
		RevokeURL:   s.URL + "/oauth/revoke",
		Scopes:      []string{"openid", "profile", "photos"},
	}
}

func (s *oauthServer) fail(w http.ResponseWriter, code int, e string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, e)
}

func (s *oauthServer) issue(w http.ResponseWriter) {
	s.issued++
	s.refreshToken = fmt.Sprintf("rt-%d", s.issued)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("at-%d", s.issued),
		"refresh_token": s.refreshToken,
		"token_type":    "Bearer",
		"expires_in":    86400,
		"user":          map[string]any{"id": "user-1", "email": "u@example.com"},
	})
}

func (s *oauthServer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("client_id") != "geosnap-cli" {
		s.fail(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		atomic.AddInt32(&s.exchanges, 1)
		s.mu.Lock()
		defer s.mu.Unlock()
		code := r.PostForm.Get("code")
		if code != "abc123" || s.usedCodes[code] ||
			r.PostForm.Get("code_verifier") != s.wantVerifier ||
			r.PostForm.Get("redirect_uri") != "geosnap://oauth-callback" {
			s.fail(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		s.usedCodes[code] = true
		s.issue(w)

	case "refresh_token":
		atomic.AddInt32(&s.refreshes, 1)
		time.Sleep(s.refreshDelay)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.refreshStatus != 0 {
			s.fail(w, s.refreshStatus, "invalid_grant")
			return
		}
		if r.PostForm.Get("refresh_token") != s.refreshToken {
			s.fail(w, http.StatusBadRequest, "invalid_grant")
			return
		}
		s.issue(w)

	default:
		s.fail(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (s *oauthServer) revoke(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.revokes, 1)
	_ = r.ParseForm()
	s.mu.Lock()
	s.lastRevoke = r.PostForm
	status := s.revokeStatus
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
	}
}

// login drives a full PKCE login with code abc123.
func login(t *testing.T, m *SessionManager) {
	t.Helper()
	ctx := context.Background()
	authURL, err := m.StartLogin(ctx)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NoError(t, m.HandleCallback(ctx, "geosnap://oauth-callback?code=abc123&state="+state))
}
