// Package auth implements the Spotify authorization code flow.
//
// A Flow builds the authorization URL, accepts the redirect carrying
// the authorization code, exchanges it for tokens and refreshes the
// access token before it expires. Tokens are written to a TokenStore;
// components that need to react to a new token watch the store rather
// than the flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/store"
)

// DefaultRefreshSkew is how long before expiry a token is refreshed
const DefaultRefreshSkew = 5 * time.Minute

// DefaultScopes are the scopes needed to read and control playback
var DefaultScopes = []string{
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
}

var (
	// ErrSchemeMismatch is returned for redirects not addressed to this application
	ErrSchemeMismatch = errors.New("auth: redirect scheme does not match")

	// ErrMissingCode is returned when a redirect carries no authorization code
	ErrMissingCode = errors.New("auth: redirect has no authorization code")

	// ErrStateMismatch is returned when the redirect state differs from the pending one
	ErrStateMismatch = errors.New("auth: redirect state does not match")

	// ErrNoRefreshToken is returned when a refresh is due but no refresh token is held
	ErrNoRefreshToken = errors.New("auth: no refresh token")

	// ErrInvalidRedirectURI is returned when the configured redirect URI is unusable
	ErrInvalidRedirectURI = errors.New("auth: invalid redirect uri")

	// ErrNotAuthenticated is returned when an operation needs stored credentials
	ErrNotAuthenticated = errors.New("auth: not logged in")
)

// TokenStore persists credentials and authentication bookkeeping
type TokenStore interface {
	Tokens(ctx context.Context) (store.TokenSet, error)
	SaveTokens(ctx context.Context, tok store.TokenSet) error
	Session(ctx context.Context) (store.SessionRecord, error)
	SetAuthenticated(ctx context.Context, authenticated bool) error
	SetPendingState(ctx context.Context, state string) error
	Reset(ctx context.Context) error
}

// Config holds the application credentials and provider endpoints
type Config struct {
	ClientID     string       // Required
	ClientSecret string       // Required for code exchange
	RedirectURI  string       // Required, e.g. desky://callback
	Scopes       []string     // Optional: defaults to DefaultScopes
	AuthURL      string       // Optional: defaults to the Spotify accounts service
	TokenURL     string       // Optional: defaults to the Spotify accounts service
	RefreshSkew  time.Duration
	HTTPClient   *http.Client // Optional: defaults to a client with a 30s timeout
}

// Opener presents the authorization URL to the user
type Opener func(url string) error

// Option configures a Flow
type Option func(*Flow)

// WithClock sets the clock used for token expiry
func WithClock(c clockwork.Clock) Option {
	return func(f *Flow) { f.clock = c }
}

// WithOpener sets how the authorization URL is opened
func WithOpener(o Opener) Option {
	return func(f *Flow) { f.opener = o }
}

// WithNotifier sets where classified failures are reported
func WithNotifier(n apperr.Notifier) Option {
	return func(f *Flow) { f.notifier = n }
}

// Flow drives authorization against the provider
type Flow struct {
	cfg        Config
	store      TokenStore
	httpClient *http.Client
	clock      clockwork.Clock
	opener     Opener
	notifier   apperr.Notifier
	logger     zerolog.Logger

	// serialises refreshes so concurrent callers issue one request
	refreshMu sync.Mutex
}

// NewFlow creates a Flow
func NewFlow(cfg Config, ts TokenStore, logger zerolog.Logger, opts ...Option) (*Flow, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("auth: ClientID is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = spotifyauth.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	f := &Flow{
		cfg:        cfg,
		store:      ts,
		httpClient: httpClient,
		clock:      clockwork.NewRealClock(),
		opener:     OpenBrowser,
		notifier:   apperr.Discard,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Flow) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		RedirectURL:  f.cfg.RedirectURI,
		Scopes:       f.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.cfg.AuthURL,
			TokenURL: f.cfg.TokenURL,
		},
	}
}

// redirectURL parses the configured redirect URI
func (f *Flow) redirectURL() (*url.URL, error) {
	u, err := url.Parse(f.cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedirectURI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRedirectURI, f.cfg.RedirectURI)
	}
	return u, nil
}

// AuthorizationURL returns the URL the user visits to grant access.
// The consent dialog is always shown so the user can switch accounts.
func (f *Flow) AuthorizationURL(state string) (string, error) {
	if _, err := f.redirectURL(); err != nil {
		return "", apperr.New(apperr.Terminal, "auth.begin", "redirect uri is not valid", err)
	}
	return f.oauthConfig().AuthCodeURL(state, spotifyauth.ShowDialog), nil
}

// BeginAuthorization records a fresh state parameter and opens the
// authorization URL. The URL is returned so callers can print it when
// opening fails.
func (f *Flow) BeginAuthorization(ctx context.Context) (string, error) {
	state := uuid.NewString()

	authURL, err := f.AuthorizationURL(state)
	if err != nil {
		return "", f.report(err)
	}

	if err := f.store.SetPendingState(ctx, state); err != nil {
		return "", f.report(apperr.New(apperr.Transient, "auth.begin", "could not record authorization state", err))
	}

	f.logger.Info().Msg("Opening authorization page")

	if err := f.opener(authURL); err != nil {
		return authURL, f.report(apperr.New(apperr.Transient, "auth.begin", "could not open authorization page", err))
	}

	return authURL, nil
}

// HandleRedirect processes a redirect delivered to the application.
// On success the authorization code is exchanged exactly once.
func (f *Flow) HandleRedirect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return f.report(apperr.New(apperr.Transient, "auth.redirect", "could not parse redirect", err))
	}

	expected, err := f.redirectURL()
	if err != nil {
		return f.report(apperr.New(apperr.Terminal, "auth.redirect", "redirect uri is not valid", err))
	}

	if !strings.EqualFold(u.Scheme, expected.Scheme) {
		f.logger.Warn().
			Str("scheme", u.Scheme).
			Str("expected", expected.Scheme).
			Msg("Ignoring redirect for another scheme")
		return ErrSchemeMismatch
	}

	q := u.Query()

	if code := q.Get("error"); code != "" {
		perr := &ProviderError{Code: code, Description: q.Get("error_description")}
		_ = f.store.SetPendingState(ctx, "")
		return f.report(apperr.New(classifyProviderError(code), "auth.redirect", perr.Message(), perr))
	}

	code := q.Get("code")
	if code == "" {
		return f.report(apperr.New(apperr.Transient, "auth.redirect", "no authorization code in redirect", ErrMissingCode))
	}

	if state := q.Get("state"); state != "" {
		rec, err := f.store.Session(ctx)
		if err != nil {
			return f.report(apperr.New(apperr.Transient, "auth.redirect", "could not read authorization state", err))
		}
		if rec.PendingState != "" && rec.PendingState != state {
			return f.report(apperr.New(apperr.Terminal, "auth.redirect", "authorization state does not match", ErrStateMismatch))
		}
	}

	_, err = f.ExchangeCode(ctx, code)
	return err
}

// ExchangeCode trades an authorization code for tokens. It is never
// retried: authorization codes are single use.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (store.TokenSet, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {f.cfg.RedirectURI},
		"client_id":     {f.cfg.ClientID},
		"client_secret": {f.cfg.ClientSecret},
	}

	resp, err := f.requestToken(ctx, "auth.exchange", form)
	if err != nil {
		return store.TokenSet{}, f.report(err)
	}

	tok := store.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.expiry(f.clock.Now()),
	}

	if err := f.store.SaveTokens(ctx, tok); err != nil {
		return store.TokenSet{}, f.report(apperr.New(apperr.Transient, "auth.exchange", "could not save tokens", err))
	}
	if err := f.store.SetAuthenticated(ctx, true); err != nil {
		return store.TokenSet{}, f.report(apperr.New(apperr.Transient, "auth.exchange", "could not save session", err))
	}
	_ = f.store.SetPendingState(ctx, "")

	f.logger.Info().
		Str("token", redact(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("Authorization complete")

	return tok, nil
}

// RefreshIfNeeded refreshes the access token when it expires within
// the configured skew. It reports whether a refresh happened. A failed
// refresh leaves the stored tokens untouched.
func (f *Flow) RefreshIfNeeded(ctx context.Context) (bool, error) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	tok, err := f.store.Tokens(ctx)
	if err != nil {
		return false, f.report(apperr.New(apperr.Transient, "auth.refresh", "could not read tokens", err))
	}
	if tok.Empty() {
		return false, nil
	}

	now := f.clock.Now()
	if !tok.ExpiresWithin(now, f.cfg.RefreshSkew) {
		return false, nil
	}

	if tok.RefreshToken == "" {
		return false, f.report(apperr.New(apperr.Terminal, "auth.refresh", "no refresh token, log in again", ErrNoRefreshToken))
	}

	f.logger.Debug().Time("expires_at", tok.ExpiresAt).Msg("Refreshing access token")

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {f.cfg.ClientID},
		"client_secret": {f.cfg.ClientSecret},
	}

	resp, err := f.requestToken(ctx, "auth.refresh", form)
	if err != nil {
		return false, f.report(err)
	}

	updated := tok
	updated.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		updated.RefreshToken = resp.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		updated.ExpiresAt = resp.expiry(now)
	}

	if err := f.store.SaveTokens(ctx, updated); err != nil {
		return false, f.report(apperr.New(apperr.Transient, "auth.refresh", "could not save tokens", err))
	}

	f.logger.Info().Time("expires_at", updated.ExpiresAt).Msg("Access token refreshed")
	return true, nil
}

// Authenticated reports whether usable credentials are stored
func (f *Flow) Authenticated(ctx context.Context) (bool, error) {
	rec, err := f.store.Session(ctx)
	if err != nil {
		return false, err
	}
	if !rec.Authenticated {
		return false, nil
	}
	tok, err := f.store.Tokens(ctx)
	if err != nil {
		return false, err
	}
	return !tok.Empty(), nil
}

// Logout forgets every credential and session flag
func (f *Flow) Logout(ctx context.Context) error {
	if err := f.store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	f.logger.Info().Msg("Logged out")
	return nil
}

// report forwards classified errors to the notifier and returns err
func (f *Flow) report(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		f.logger.Warn().
			Str("kind", appErr.Kind.String()).
			Str("op", appErr.Op).
			Msg(appErr.Error())
		f.notifier.Notify(appErr)
	}
	return err
}

// redact keeps a short prefix of a secret for logging
func redact(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:6] + "..."
}
