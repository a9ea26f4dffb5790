// Package auth manages upstream credentials: a static API key or an OAuth
// token set obtained through a PKCE authorization-code flow. Tokens are
// refreshed just in time; the PKCE session is a single in-memory slot
// consumed exactly once, never persisted.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	oni "github.com/onios/oni"
)

// credentialPath is the durable record holding the current credential.
const credentialPath = "credential"

// refreshWindow: an OAuth credential expiring within this window is
// refreshed before use.
const refreshWindow = 5 * time.Minute

// sessionTTL bounds how long a begun-but-uncompleted PKCE flow stays valid.
const sessionTTL = 10 * time.Minute

// Endpoints configures the OAuth authorization server.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	RedirectURI  string
	Scopes       []string
}

// BeginAuthResult is handed to the shell to open the browser.
type BeginAuthResult struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// Status states.
const (
	StatusNone          = "none"
	StatusAuthenticated = "authenticated"
	StatusExpired       = "expired"
)

// Status describes the current credential without exposing secrets.
type Status struct {
	State string `json:"state"` // none | authenticated | expired
	Type  string `json:"type,omitempty"`
	Email string `json:"email,omitempty"` // masked
	Plan  string `json:"plan,omitempty"`
}

// pkceSession is the single-slot in-flight authorization state. Consumed
// once by CompleteAuth and invalidated immediately.
type pkceSession struct {
	state    string
	verifier string
	started  time.Time
}

// Manager owns credential acquisition and refresh.
type Manager struct {
	records   oni.RecordStore
	endpoints Endpoints
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	session *pkceSession
}

var _ oni.CredentialSource = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for token calls.
func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New creates a credential manager persisting through records.
func New(records oni.RecordStore, endpoints Endpoints, opts ...Option) *Manager {
	m := &Manager{
		records:   records,
		endpoints: endpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetAPIKey stores a static-key credential. It never expires and is never
// refreshed.
func (m *Manager) SetAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return &oni.ErrAuthFlow{Message: "empty api key"}
	}
	return m.records.Write(ctx, credentialPath, oni.Credential{Type: oni.CredentialAPIKey, Key: key})
}

// BeginAuth starts a PKCE flow: it generates a code verifier/challenge pair
// and an anti-CSRF state, holds them in the single session slot, and returns
// the authorization URL for the shell to open. A second BeginAuth replaces
// any unconsumed session.
func (m *Manager) BeginAuth(ctx context.Context) (BeginAuthResult, error) {
	verifier, err := randomToken(64)
	if err != nil {
		return BeginAuthResult{}, err
	}
	state, err := randomToken(32)
	if err != nil {
		return BeginAuthResult{}, err
	}
	challenge := s256Challenge(verifier)

	m.mu.Lock()
	m.session = &pkceSession{state: state, verifier: verifier, started: m.now()}
	m.mu.Unlock()

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.endpoints.ClientID)
	q.Set("redirect_uri", m.endpoints.RedirectURI)
	q.Set("scope", strings.Join(m.endpoints.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")

	return BeginAuthResult{
		AuthorizationURL: m.endpoints.AuthorizeURL + "?" + q.Encode(),
		State:            state,
	}, nil
}

// CompleteAuth consumes the pending PKCE session: it validates the state on
// the redirect callback URL, exchanges the authorization code for tokens,
// derives the account identity from the identity-token claims, and persists
// the credential.
func (m *Manager) CompleteAuth(ctx context.Context, callbackURL string) (oni.Account, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return oni.Account{}, &oni.ErrAuthFlow{Message: "bad callback url: " + err.Error()}
	}
	code := u.Query().Get("code")
	state := u.Query().Get("state")
	if code == "" {
		return oni.Account{}, &oni.ErrAuthFlow{Message: "callback missing authorization code"}
	}

	// One-time consume: the slot is cleared whether the exchange succeeds
	// or not, so a replayed callback cannot reuse the verifier.
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session == nil {
		return oni.Account{}, &oni.ErrAuthFlow{Message: "no authorization in progress"}
	}
	if m.now().Sub(session.started) > sessionTTL {
		return oni.Account{}, &oni.ErrAuthFlow{Message: "authorization session expired"}
	}
	if state != session.state {
		return oni.Account{}, &oni.ErrAuthFlow{Message: "state mismatch"}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", session.verifier)
	form.Set("client_id", m.endpoints.ClientID)
	form.Set("redirect_uri", m.endpoints.RedirectURI)

	tokens, err := m.tokenCall(ctx, form)
	if err != nil {
		return oni.Account{}, err
	}

	cred := oni.Credential{
		Type:         oni.CredentialOAuth,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		ExpiresAt:    m.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix(),
		Account:      accountFromIDToken(tokens.IDToken),
	}
	if err := m.records.Write(ctx, credentialPath, cred); err != nil {
		return oni.Account{}, err
	}
	m.logger.Info("oauth credential stored", "email", maskEmail(cred.Account.Email))
	return cred.Account, nil
}

// Credential returns a currently valid bearer credential. An OAuth
// credential within the refresh window of expiry is refreshed first; if the
// refresh is rejected the stored credential is invalidated and the caller
// sees ErrNoCredential wrapped in ErrRefreshFailed.
func (m *Manager) Credential(ctx context.Context) (oni.Credential, error) {
	cred, ok, err := m.load(ctx)
	if err != nil {
		return oni.Credential{}, err
	}
	if !ok {
		return oni.Credential{}, oni.ErrNoCredential
	}
	if cred.Type == oni.CredentialAPIKey {
		return cred, nil
	}

	if time.Unix(cred.ExpiresAt, 0).Sub(m.now()) > refreshWindow {
		return cred, nil
	}

	refreshed, err := m.refresh(ctx, cred)
	if err != nil {
		// A stale token is never silently reused.
		if delErr := m.records.Delete(ctx, credentialPath); delErr != nil {
			m.logger.Warn("invalidate credential", "error", delErr)
		}
		return oni.Credential{}, &oni.ErrRefreshFailed{Cause: err}
	}
	return refreshed, nil
}

// Refresh forces a token refresh regardless of remaining lifetime.
func (m *Manager) Refresh(ctx context.Context) (oni.Credential, error) {
	cred, ok, err := m.load(ctx)
	if err != nil {
		return oni.Credential{}, err
	}
	if !ok || cred.Type != oni.CredentialOAuth {
		return oni.Credential{}, oni.ErrNoCredential
	}
	refreshed, err := m.refresh(ctx, cred)
	if err != nil {
		return oni.Credential{}, &oni.ErrRefreshFailed{Cause: err}
	}
	return refreshed, nil
}

// refresh exchanges the refresh token and persists the new token set,
// reusing the old refresh token when the server omits a new one.
func (m *Manager) refresh(ctx context.Context, cred oni.Credential) (oni.Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", m.endpoints.ClientID)

	tokens, err := m.tokenCall(ctx, form)
	if err != nil {
		return oni.Credential{}, err
	}

	next := cred
	next.AccessToken = tokens.AccessToken
	next.ExpiresAt = m.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).Unix()
	if tokens.RefreshToken != "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if tokens.IDToken != "" {
		next.IDToken = tokens.IDToken
		next.Account = accountFromIDToken(tokens.IDToken)
	}
	if err := m.records.Write(ctx, credentialPath, next); err != nil {
		return oni.Credential{}, err
	}
	m.logger.Debug("oauth credential refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// Logout deletes the persisted credential and any pending PKCE session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return m.records.Delete(ctx, credentialPath)
}

// Status reports the credential state with a masked identity.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	cred, ok, err := m.load(ctx)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{State: StatusNone}, nil
	}
	st := Status{State: StatusAuthenticated, Type: cred.Type}
	if cred.Type == oni.CredentialOAuth {
		st.Email = maskEmail(cred.Account.Email)
		st.Plan = cred.Account.Plan
		if time.Unix(cred.ExpiresAt, 0).Before(m.now()) {
			st.State = StatusExpired
		}
	}
	return st, nil
}

// load reads the stored credential; ok is false when none is stored.
func (m *Manager) load(ctx context.Context) (oni.Credential, bool, error) {
	var cred oni.Credential
	if err := m.records.Read(ctx, credentialPath, &cred); err != nil {
		return oni.Credential{}, false, err
	}
	if cred.Type == "" {
		return oni.Credential{}, false, nil
	}
	return cred, true, nil
}

// tokenResponse is the token endpoint's reply for both grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *Manager) tokenCall(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoints.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return tokenResponse{}, &oni.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return tokenResponse{}, &oni.ErrAuthFlow{Message: "token response missing access_token"}
	}
	return tokens, nil
}

// accountFromIDToken decodes the identity token's claims segment. The
// signature is not verified here: the token arrives over TLS directly from
// the token endpoint and is only used for display identity.
func accountFromIDToken(idToken string) oni.Account {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return oni.Account{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return oni.Account{}
	}
	var claims struct {
		Email        string `json:"email"`
		Plan         string `json:"plan"`
		Organization string `json:"organization"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return oni.Account{}
	}
	return oni.Account{Email: claims.Email, Plan: claims.Plan, Organization: claims.Organization}
}

// maskEmail hides the local part: "alice@example.com" -> "a***@example.com".
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

// randomToken returns n random bytes, base64url-encoded without padding.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// s256Challenge derives the PKCE S256 code challenge from a verifier.
func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
