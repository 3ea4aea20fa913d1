package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/cryptox"
	"github.com/dmitrijs2005/geosnap/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// SessionState is the position of the session state machine.
type SessionState int

const (
	StateLoggedOut SessionState = iota
	StateAwaitingCallback
	StateAuthenticated
	StateRefreshing
)

func (s SessionState) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateAwaitingCallback:
		return "awaiting-callback"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// defaultTokenLifetime applies when the token response carries no expiry.
const defaultTokenLifetime = time.Hour

// TokenStore is the credential persistence used by the session manager.
type TokenStore interface {
	Save(ctx context.Context, c models.Credential) error
	Credential(ctx context.Context) (models.Credential, error)
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	IsExpired(ctx context.Context) (bool, error)
	NeedsRefresh(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
}

// BrowserOpener hands the authorization URL to an external user agent.
type BrowserOpener interface {
	Open(ctx context.Context, authURL string) error
}

// OpenerFunc adapts a function to BrowserOpener.
type OpenerFunc func(ctx context.Context, authURL string) error

func (f OpenerFunc) Open(ctx context.Context, authURL string) error { return f(ctx, authURL) }

// OAuthConfig describes the public OAuth2 client.
type OAuthConfig struct {
	ClientID    string
	RedirectURI string
	AuthURL     string
	TokenURL    string
	RevokeURL   string
	Scopes      []string
}

// SessionManager owns the login, refresh and logout state machine. It is
// the only writer of the token store.
type SessionManager struct {
	oauth     *oauth2.Config
	redirect  *url.URL
	revokeURL string
	store     TokenStore
	http      *http.Client
	opener    BrowserOpener
	log       logging.Logger
	now       func() time.Time
	newPKCE   func() (verifier, challenge string)

	mu        sync.Mutex
	state     SessionState
	pkce      *models.PKCEPair
	sessCtx   context.Context
	cancel    context.CancelFunc
	listeners []func(SessionState)

	refreshes singleflight.Group
}

type SessionOption func(*SessionManager)

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionManager) { s.now = now }
}

func WithPKCEGenerator(gen func() (verifier, challenge string)) SessionOption {
	return func(s *SessionManager) { s.newPKCE = gen }
}

func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *SessionManager) { s.http = c }
}

func WithBrowserOpener(o BrowserOpener) SessionOption {
	return func(s *SessionManager) { s.opener = o }
}

func WithSessionLogger(l logging.Logger) SessionOption {
	return func(s *SessionManager) { s.log = l }
}

func NewSessionManager(cfg OAuthConfig, store TokenStore, opts ...SessionOption) (*SessionManager, error) {
	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil || redirect.Scheme == "" {
		return nil, fmt.Errorf("invalid redirect uri %q", cfg.RedirectURI)
	}

	s := &SessionManager{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		redirect:  redirect,
		revokeURL: cfg.RevokeURL,
		store:     store,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logging.Nop(),
		now:       time.Now,
		newPKCE:   cryptox.NewPKCE,
	}
	for _, o := range opts {
		o(s)
	}
	s.sessCtx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// State returns the current state.
func (s *SessionManager) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for every state transition.
func (s *SessionManager) OnStateChange(fn func(SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// setStateLocked must be called with mu held; the returned func notifies
// listeners and must be called after mu is released.
func (s *SessionManager) setStateLocked(to SessionState) func() {
	from := s.state
	if from == to {
		return func() {}
	}
	s.state = to
	listeners := slices.Clone(s.listeners)
	return func() {
		s.log.Info(context.Background(), "session state changed", "from", from.String(), "to", to.String())
		for _, fn := range listeners {
			fn(to)
		}
	}
}

func (s *SessionManager) transition(to SessionState) {
	s.mu.Lock()
	notify := s.setStateLocked(to)
	s.mu.Unlock()
	notify()
}

// resumeAuthenticated leaves Refreshing unless sessCtx was cancelled by a
// Logout in the meantime, whose LoggedOut must stand.
func (s *SessionManager) resumeAuthenticated(sessCtx context.Context) {
	s.mu.Lock()
	if sessCtx.Err() != nil {
		s.mu.Unlock()
		return
	}
	notify := s.setStateLocked(StateAuthenticated)
	s.mu.Unlock()
	notify()
}

// Restore enters Authenticated when a credential survives from a previous
// run. A stale credential is refreshed on first use.
func (s *SessionManager) Restore(ctx context.Context) error {
	c, err := s.store.Credential(ctx)
	if errors.Is(err, common.ErrNoCredential) {
		s.transition(StateLoggedOut)
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info(ctx, "session restored", "subject_id", c.SubjectID, "expires_at", c.ExpiresAt)
	s.transition(StateAuthenticated)
	return nil
}

// StartLogin issues a fresh PKCE pair and state, hands the authorization
// URL to the browser opener and returns it. Starting again while awaiting a
// callback replaces the previous pair.
func (s *SessionManager) StartLogin(ctx context.Context) (string, error) {
	state, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier, challenge := s.newPKCE()

	s.mu.Lock()
	if s.state == StateAuthenticated || s.state == StateRefreshing {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: already logged in", common.ErrInvalidState)
	}
	s.pkce = &models.PKCEPair{Verifier: verifier, Challenge: challenge, State: state}
	notify := s.setStateLocked(StateAwaitingCallback)
	s.mu.Unlock()
	notify()

	authURL := s.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", common.PKCEMethod))

	s.log.Info(ctx, "login started", "auth_endpoint", s.oauth.Endpoint.AuthURL)
	if s.opener != nil {
		if err := s.opener.Open(ctx, authURL); err != nil {
			s.log.Warn(ctx, "could not open browser", "error", err)
		}
	}
	return authURL, nil
}

// HandleCallback consumes the deep link delivered after the browser login.
// The held PKCE pair is discarded whatever the outcome.
func (s *SessionManager) HandleCallback(ctx context.Context, callbackURL string) error {
	s.mu.Lock()
	pkce := s.pkce
	s.pkce = nil
	if s.state != StateAwaitingCallback || pkce == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no login in progress", common.ErrInvalidState)
	}
	s.mu.Unlock()

	code, err := s.parseCallback(callbackURL, pkce.State)
	if err != nil {
		s.log.Warn(ctx, "login callback rejected", "error", err)
		s.transition(StateLoggedOut)
		return err
	}

	tok, err := s.oauth.Exchange(s.oauthContext(ctx), code, oauth2.VerifierOption(pkce.Verifier))
	if err != nil {
		s.transition(StateLoggedOut)
		return fmt.Errorf("token exchange: %w", classifyOAuthError(ctx, err, common.ErrRejected))
	}

	cred := s.credentialFromToken(tok, models.Credential{})
	if err := s.store.Save(ctx, cred); err != nil {
		s.transition(StateLoggedOut)
		return err
	}

	s.log.Info(ctx, "logged in", "subject_id", cred.SubjectID, "expires_at", cred.ExpiresAt)
	s.transition(StateAuthenticated)
	return nil
}

func (s *SessionManager) parseCallback(raw, wantState string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: unparsable callback: %w", common.ErrMissingAuthorizationCode, err)
	}
	if !strings.EqualFold(u.Scheme, s.redirect.Scheme) || u.Host != s.redirect.Host ||
		strings.TrimSuffix(u.Path, "/") != strings.TrimSuffix(s.redirect.Path, "/") {
		return "", fmt.Errorf("%w: unexpected callback target %s://%s%s", common.ErrMissingAuthorizationCode, u.Scheme, u.Host, u.Path)
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		if d := q.Get("error_description"); d != "" {
			e += ": " + d
		}
		return "", fmt.Errorf("%w: authorization server returned %s", common.ErrMissingAuthorizationCode, e)
	}
	if got, ok := q["state"]; ok && (len(got) != 1 || got[0] != wantState) {
		return "", fmt.Errorf("%w: state mismatch", common.ErrInvalidState)
	}
	code := q.Get("code")
	if code == "" {
		return "", common.ErrMissingAuthorizationCode
	}
	return code, nil
}

// AccessToken returns a token fit for an authenticated call, refreshing
// first when the lead window has been reached.
func (s *SessionManager) AccessToken(ctx context.Context) (string, error) {
	need, err := s.store.NeedsRefresh(ctx)
	if errors.Is(err, common.ErrNoCredential) {
		return "", fmt.Errorf("%w: not logged in", common.ErrAuthExpired)
	}
	if err != nil {
		return "", err
	}

	if need {
		cred, err := s.Refresh(ctx)
		if err == nil {
			return cred.AccessToken, nil
		}
		if !common.IsRetryable(err) {
			return "", err
		}
		// The refresh was early; the old token may still be usable.
		if expired, xerr := s.store.IsExpired(ctx); xerr != nil || expired {
			return "", err
		}
		s.log.Warn(ctx, "proactive refresh failed, using current token", "error", err)
	}

	return s.store.AccessToken(ctx)
}

// Refresh exchanges the refresh token for a new credential. Concurrent
// calls share one request. A refresh token the server no longer accepts
// ends the session with common.ErrAuthExpired.
func (s *SessionManager) Refresh(ctx context.Context) (models.Credential, error) {
	seen, err := s.store.RefreshToken(ctx)
	if errors.Is(err, common.ErrNoCredential) {
		return models.Credential{}, fmt.Errorf("%w: not logged in", common.ErrAuthExpired)
	}
	if err != nil {
		return models.Credential{}, err
	}

	ch := s.refreshes.DoChan("refresh", func() (any, error) {
		return s.refresh(seen)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return models.Credential{}, r.Err
		}
		return r.Val.(models.Credential), nil
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	}
}

// refresh redeems seen, the refresh token the caller observed. If the store
// already holds a different one, another refresh finished first and its
// result is returned as is.
func (s *SessionManager) refresh(seen string) (models.Credential, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated && s.state != StateRefreshing {
		s.mu.Unlock()
		return models.Credential{}, fmt.Errorf("%w: not logged in", common.ErrAuthExpired)
	}
	ctx := s.sessCtx
	notify := s.setStateLocked(StateRefreshing)
	s.mu.Unlock()
	notify()

	cur, err := s.store.Credential(ctx)
	if errors.Is(err, common.ErrNoCredential) {
		s.transition(StateLoggedOut)
		return models.Credential{}, fmt.Errorf("%w: credential vanished", common.ErrAuthExpired)
	}
	if err != nil {
		s.resumeAuthenticated(ctx)
		return models.Credential{}, err
	}
	if cur.RefreshToken != seen {
		s.log.Debug(ctx, "refresh skipped", "reason", common.ErrRefreshRaceLost)
		s.resumeAuthenticated(ctx)
		return cur, nil
	}

	s.log.Debug(ctx, "refreshing access token", "refresh_token", logging.RedactToken(cur.RefreshToken))
	src := s.oauth.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken})
	tok, err := src.Token()

	if ctx.Err() != nil {
		// Logout won the race; its clear stands.
		return models.Credential{}, fmt.Errorf("%w: session ended during refresh", common.ErrAuthExpired)
	}
	if err != nil {
		err = classifyOAuthError(ctx, err, common.ErrAuthExpired)
		if errors.Is(err, common.ErrAuthExpired) {
			s.log.Warn(ctx, "refresh token rejected, logging out", "error", err)
			if cerr := s.store.Clear(ctx); cerr != nil {
				s.log.Error(ctx, "clear after rejected refresh failed", "error", cerr)
			}
			s.transition(StateLoggedOut)
			return models.Credential{}, err
		}
		s.resumeAuthenticated(ctx)
		return models.Credential{}, fmt.Errorf("refresh: %w", err)
	}

	cred := s.credentialFromToken(tok, cur)

	// Saving under mu orders the write against Logout's cancel: either the
	// save lands first and Logout clears it, or the cancel is seen here.
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return models.Credential{}, fmt.Errorf("%w: session ended during refresh", common.ErrAuthExpired)
	}
	err = s.store.Save(ctx, cred)
	s.mu.Unlock()
	if err != nil {
		s.resumeAuthenticated(ctx)
		return models.Credential{}, err
	}

	s.log.Info(ctx, "access token refreshed", "expires_at", cred.ExpiresAt)
	s.resumeAuthenticated(ctx)
	return cred, nil
}

// HandleUnauthorized reacts to a 401 for rejected. When the stored token has
// already moved on, another caller refreshed in the meantime and nothing is
// done.
func (s *SessionManager) HandleUnauthorized(ctx context.Context, rejected string) {
	cur, err := s.store.AccessToken(ctx)
	if err != nil {
		return
	}
	if cur != rejected {
		s.log.Debug(ctx, "stale 401 ignored", "reason", common.ErrRefreshRaceLost)
		return
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Warn(ctx, "refresh after 401 failed", "error", err)
	}
}

// Logout revokes the refresh token (best effort) and clears the local
// credential even when revocation fails. In-flight refreshes and any work
// bound with Bind are cancelled.
func (s *SessionManager) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.sessCtx, s.cancel = context.WithCancel(context.Background())
	s.pkce = nil
	s.mu.Unlock()

	if rt, err := s.store.RefreshToken(ctx); err == nil && rt != "" {
		s.revoke(ctx, rt)
	}

	err := s.store.Clear(ctx)
	s.transition(StateLoggedOut)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "logged out")
	return nil
}

func (s *SessionManager) revoke(ctx context.Context, token string) {
	if s.revokeURL == "" {
		return
	}
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"refresh_token"},
		"client_id":       {s.oauth.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		s.log.Warn(ctx, "revoke request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warn(ctx, "revoke failed, clearing anyway", "error", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.Warn(ctx, "revoke answered non-2xx, clearing anyway", "status", resp.StatusCode)
	}
}

// Bind returns a context that is also cancelled when the current session
// ends by logout.
func (s *SessionManager) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.Lock()
	sess := s.sessCtx
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sess, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *SessionManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.http)
}

// credentialFromToken converts a token response. Fields the response omits
// are carried over from prev.
func (s *SessionManager) credentialFromToken(tok *oauth2.Token, prev models.Credential) models.Credential {
	c := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		SubjectID:    subjectFromToken(tok),
	}
	if c.RefreshToken == "" {
		c.RefreshToken = prev.RefreshToken
	}
	if c.SubjectID == "" {
		c.SubjectID = prev.SubjectID
	}

	switch secs, ok := expiresIn(tok); {
	case ok:
		c.ExpiresAt = s.now().Add(time.Duration(secs) * time.Second)
	case !tok.Expiry.IsZero():
		c.ExpiresAt = tok.Expiry
	default:
		c.ExpiresAt = s.now().Add(defaultTokenLifetime)
	}
	return c
}

func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// subjectFromToken reads user.id from the token response, falling back to
// the sub claim of a JWT access token. The JWT is not verified; it is only
// used to label the local session.
func subjectFromToken(tok *oauth2.Token) string {
	if user, ok := tok.Extra("user").(map[string]any); ok {
		switch id := user["id"].(type) {
		case string:
			return id
		case float64:
			return strconv.FormatInt(int64(id), 10)
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// classifyOAuthError maps token endpoint failures. A 4xx answer becomes
// rejected; 408, 429, 5xx and transport failures are transient.
func classifyOAuthError(ctx context.Context, err error, rejected error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := 0
		if re.Response != nil {
			code = re.Response.StatusCode
		}
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
			return fmt.Errorf("%w: token endpoint: %w", common.ErrNetworkUnavailable, err)
		}
		return fmt.Errorf("%w: %w", rejected, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", common.ErrNetworkUnavailable, err)
}
