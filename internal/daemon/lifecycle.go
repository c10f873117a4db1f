package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/auth"
	"github.com/jfmyers9/desky/internal/session"
	"github.com/jfmyers9/desky/internal/store"
)

// Authenticator refreshes and reports credentials
type Authenticator interface {
	RefreshIfNeeded(ctx context.Context) (bool, error)
	Authenticated(ctx context.Context) (bool, error)
}

// TokenSource reads the stored tokens and reports changes
type TokenSource interface {
	Tokens(ctx context.Context) (store.TokenSet, error)
	Watch(fn store.Watcher) func()
}

// Session is the part of the connector the coordinator drives
type Session interface {
	Connect(token string) error
	UpdateToken(token string)
	Suspend()
	Status() session.Status
	CanResume(ctx context.Context) bool
}

// refreshRetryDelay spaces out refreshes of a token that is already due
const refreshRetryDelay = time.Minute

// LifecycleConfig holds foreground/background behaviour
type LifecycleConfig struct {
	// ReconnectDebounce delays the reconnect after returning to the
	// foreground so quick switches do not churn the session
	ReconnectDebounce time.Duration

	// AutoConnect connects on start whenever credentials exist
	AutoConnect bool

	// RefreshSkew is how long before expiry the access token is
	// refreshed while in the foreground
	RefreshSkew time.Duration
}

// LifecycleOption configures a Coordinator
type LifecycleOption func(*Coordinator)

// WithLifecycleClock sets the clock driving the reconnect timer
func WithLifecycleClock(clock clockwork.Clock) LifecycleOption {
	return func(c *Coordinator) { c.clock = clock }
}

// Coordinator opens and closes the session as the application moves
// between foreground and background, keeps the access token fresh while
// in the foreground, and reconnects when a new access token arrives.
type Coordinator struct {
	auth   Authenticator
	tokens TokenSource
	sess   Session
	cfg    LifecycleConfig
	clock  clockwork.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	foreground bool
	timer      clockwork.Timer
	gen        uint64
	unwatch    func()

	refreshTimer clockwork.Timer
	refreshGen   uint64
	refreshing   int // refreshes in flight whose caller connects itself
}

// NewCoordinator creates a Coordinator
func NewCoordinator(authn Authenticator, tokens TokenSource, sess Session, cfg LifecycleConfig, logger zerolog.Logger, opts ...LifecycleOption) *Coordinator {
	if cfg.ReconnectDebounce <= 0 {
		cfg.ReconnectDebounce = 2 * time.Second
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = auth.DefaultRefreshSkew
	}
	c := &Coordinator{
		auth:   authn,
		tokens: tokens,
		sess:   sess,
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: logger.With().Str("component", "lifecycle").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start watches for token changes and connects on launch when the user
// is authenticated and auto-connect is on or a session can be resumed.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.foreground = true
	if c.unwatch == nil {
		c.unwatch = c.tokens.Watch(c.tokenChanged)
	}
	c.mu.Unlock()

	ok, err := c.auth.Authenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Info().Msg("Not authenticated, waiting for login")
		return nil
	}

	if !c.cfg.AutoConnect && !c.sess.CanResume(ctx) {
		c.logger.Debug().Msg("Auto-connect disabled and nothing to resume")
		return nil
	}

	if err := c.refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Token refresh failed, connecting with stored token")
	}
	c.scheduleRefresh(ctx)
	_ = c.connect(ctx)
	return nil
}

// Stop cancels pending work and stops watching tokens
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelTimerLocked()
	c.cancelRefreshLocked()
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
}

// Connect refreshes the token if needed and opens the session at once,
// replacing any pending reconnect.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.cancelTimerLocked()
	c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Token refresh failed, connecting with stored token")
	}
	c.scheduleRefresh(ctx)
	return c.connect(ctx)
}

// Foreground handles the application becoming active: the token is
// refreshed if needed and one reconnect is scheduled after the debounce
// when a resumable session is closed.
func (c *Coordinator) Foreground(ctx context.Context) {
	c.mu.Lock()
	c.foreground = true
	c.cancelTimerLocked()
	c.mu.Unlock()

	c.logger.Debug().Msg("Entered foreground")

	// A token rotated here is picked up by the debounced reconnect
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Token refresh failed")
	}
	c.scheduleRefresh(ctx)

	if !c.shouldReconnect(ctx) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.foreground {
		return
	}
	c.cancelTimerLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.cfg.ReconnectDebounce, func() { c.reconnect(gen) })

	c.logger.Debug().Dur("delay", c.cfg.ReconnectDebounce).Msg("Reconnect scheduled")
}

// Background handles the application leaving the foreground: pending
// reconnects and refreshes are cancelled and the session is suspended.
func (c *Coordinator) Background() {
	c.mu.Lock()
	c.foreground = false
	c.cancelTimerLocked()
	c.cancelRefreshLocked()
	c.mu.Unlock()

	c.logger.Debug().Msg("Entered background")
	c.sess.Suspend()
}

// PendingReconnect reports whether a reconnect is scheduled
func (c *Coordinator) PendingReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// PendingRefresh reports whether a token refresh is scheduled
func (c *Coordinator) PendingRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshTimer != nil
}

func (c *Coordinator) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) cancelRefreshLocked() {
	c.refreshGen++
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *Coordinator) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.foreground {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !c.shouldReconnect(ctx) {
		return
	}
	c.logger.Info().Msg("Resuming session")
	_ = c.connect(ctx)
}

func (c *Coordinator) shouldReconnect(ctx context.Context) bool {
	switch c.sess.Status().State {
	case session.Connected, session.Connecting, session.Retrying:
		return false
	}

	ok, err := c.auth.Authenticated(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read authentication state")
		return false
	}
	return ok && c.sess.CanResume(ctx)
}

func (c *Coordinator) connect(ctx context.Context) error {
	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read tokens")
		return err
	}
	if tok.Empty() {
		return auth.ErrNotAuthenticated
	}
	if err := c.sess.Connect(tok.AccessToken); err != nil {
		c.logger.Warn().Err(err).Msg("Connect failed")
		return err
	}
	return nil
}

// refresh refreshes the token if needed. A rotated token only updates
// an open session; the caller decides whether to connect.
func (c *Coordinator) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshing++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing--
		c.mu.Unlock()
	}()

	_, err := c.auth.RefreshIfNeeded(ctx)
	return err
}

// scheduleRefresh arms the refresh timer for the stored token
func (c *Coordinator) scheduleRefresh(ctx context.Context) {
	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read tokens")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleRefreshLocked(tok)
}

// scheduleRefreshLocked replaces the refresh timer with one firing
// RefreshSkew before tok expires. Nothing is scheduled in the background
// or for tokens without an expiry.
func (c *Coordinator) scheduleRefreshLocked(tok store.TokenSet) {
	c.cancelRefreshLocked()
	if !c.foreground || tok.Empty() || tok.ExpiresAt.IsZero() {
		return
	}

	delay := tok.ExpiresAt.Add(-c.cfg.RefreshSkew).Sub(c.clock.Now())
	if delay <= 0 {
		delay = refreshRetryDelay
	}
	c.armRefreshLocked(delay)
}

func (c *Coordinator) armRefreshLocked(delay time.Duration) {
	gen := c.refreshGen
	c.refreshTimer = c.clock.AfterFunc(delay, func() { c.refreshDue(gen) })
	c.logger.Debug().Dur("delay", delay).Msg("Token refresh scheduled")
}

// refreshDue runs when the access token is about to expire. A session
// that dropped in the meantime is reopened with the fresh token.
func (c *Coordinator) refreshDue(gen uint64) {
	c.mu.Lock()
	if gen != c.refreshGen || !c.foreground {
		c.mu.Unlock()
		return
	}
	c.refreshTimer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Dur("retry_in", refreshRetryDelay).Msg("Scheduled token refresh failed")
		c.mu.Lock()
		if c.foreground && c.refreshTimer == nil {
			c.armRefreshLocked(refreshRetryDelay)
		}
		c.mu.Unlock()
		return
	}

	// A rotated token has already rescheduled through tokenChanged
	tok, err := c.tokens.Tokens(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read tokens")
		return
	}
	c.mu.Lock()
	if c.refreshTimer == nil {
		c.scheduleRefreshLocked(tok)
	}
	pending := c.timer != nil || !c.foreground
	c.mu.Unlock()
	if pending || !c.shouldReconnect(ctx) {
		return
	}
	c.logger.Info().Msg("Resuming session with refreshed token")
	_ = c.connect(ctx)
}

// tokenChanged hands a new access token to an open session, or connects
// with it. Refreshes started by the coordinator and a pending foreground
// reconnect connect on their own.
func (c *Coordinator) tokenChanged(old, updated store.TokenSet) {
	c.mu.Lock()
	c.scheduleRefreshLocked(updated)
	deferred := c.refreshing > 0 || c.timer != nil
	c.mu.Unlock()

	if updated.Empty() {
		return
	}
	if c.sess.Status().State == session.Connected {
		c.sess.UpdateToken(updated.AccessToken)
		return
	}
	if deferred {
		c.logger.Debug().Msg("Access token changed, connect left to the pending reconnect")
		return
	}
	c.logger.Info().Msg("Access token changed, connecting")
	if err := c.sess.Connect(updated.AccessToken); err != nil {
		c.logger.Warn().Err(err).Msg("Connect failed")
	}
}
