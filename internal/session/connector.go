// Package session owns the playback-control connection state machine.
//
// A Connector moves between Disconnected, Connecting, Connected,
// Retrying and Error. Failed attempts are retried with exponential
// backoff up to a fixed budget. Every transition is delivered
// synchronously to registered listeners while the connector lock is
// held, so observers never see a state that has already been replaced.
// Listeners must not call back into the Connector from SessionChanged.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/music"
	"github.com/jfmyers9/desky/internal/store"
)

// ErrNoAccessToken is returned by Connect when called without a token
var ErrNoAccessToken = errors.New("session: no access token")

// State is the connection state
type State int

const (
	Disconnected State = iota // No session and none in progress
	Connecting                // An attempt is in flight
	Connected                 // Session open
	Retrying                  // Waiting for the retry timer after a failure
	Error                     // Retry budget exhausted; waits for an explicit Connect
)

// String returns a human-readable representation of the State
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Retrying:
		return "retrying"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Status describes the connector at one transition
type Status struct {
	State   State
	Message string    // Failure message in Retrying and Error
	Attempt int       // Attempt number within the current Connect
	Since   time.Time // Time of the transition
}

// Listener observes state transitions
type Listener interface {
	SessionChanged(status Status)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(status Status)

// SessionChanged calls f(status)
func (f ListenerFunc) SessionChanged(status Status) {
	f(status)
}

// Recorder persists connection bookkeeping
type Recorder interface {
	Session(ctx context.Context) (store.SessionRecord, error)
	MarkConnected(ctx context.Context, t time.Time) error
	MarkDisconnected(ctx context.Context, resumable bool) error
}

// Config holds retry and resume timings
type Config struct {
	MaxRetries     int           // Total attempts per Connect (default 3)
	RetryBackoff   time.Duration // First retry delay, doubled per attempt (default 2s)
	MaxBackoff     time.Duration // Cap on the retry delay (default 30s)
	ConnectTimeout time.Duration // Deadline for one attempt (default 10s)
	ResumeWindow   time.Duration // How long a suspended session stays resumable (default 24h)
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ResumeWindow <= 0 {
		c.ResumeWindow = 24 * time.Hour
	}
	return c
}

// Option configures a Connector
type Option func(*Connector)

// WithClock sets the clock used for timers and timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(c *Connector) { c.clock = clock }
}

// WithNotifier sets where classified failures are reported
func WithNotifier(n apperr.Notifier) Option {
	return func(c *Connector) { c.notifier = n }
}

// Connector manages the session with the music remote
type Connector struct {
	remote   music.Remote
	rec      Recorder
	cfg      Config
	clock    clockwork.Clock
	notifier apperr.Notifier
	logger   zerolog.Logger

	mu        sync.Mutex
	status    Status
	gen       uint64 // bumped whenever in-flight work must be ignored
	token     string
	attempts  int
	retry     clockwork.Timer
	cancel    context.CancelFunc
	listeners []Listener

	inflight sync.WaitGroup
}

// New creates a Connector in the Disconnected state
func New(remote music.Remote, rec Recorder, cfg Config, logger zerolog.Logger, opts ...Option) *Connector {
	c := &Connector{
		remote:   remote,
		rec:      rec,
		cfg:      cfg.withDefaults(),
		clock:    clockwork.NewRealClock(),
		notifier: apperr.Discard,
		logger:   logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status = Status{State: Disconnected, Since: c.clock.Now()}
	return c
}

// AddListener registers l for every subsequent transition
func (c *Connector) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Status returns the current status
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PendingRetry reports whether a retry timer is scheduled
func (c *Connector) PendingRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry != nil
}

// Connect starts a new connection attempt with token. Any pending
// retry and any attempt in flight are abandoned first.
func (c *Connector) Connect(token string) error {
	if token == "" {
		return ErrNoAccessToken
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandonLocked()
	c.token = token
	c.attempts = 0

	c.logger.Info().Msg("Connecting")
	c.startAttemptLocked()
	return nil
}

// UpdateToken replaces the access token used by the open session and
// by later retries without closing the session
func (c *Connector) UpdateToken(token string) {
	if token == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	if c.status.State != Connected {
		return
	}
	if u, ok := c.remote.(music.TokenUpdater); ok {
		u.UpdateToken(token)
		c.logger.Debug().Msg("Access token updated")
	}
}

// Disconnect closes the session at the user's request. The session is
// not resumable afterwards.
func (c *Connector) Disconnect() {
	c.close(false, "Disconnected")
}

// Suspend closes the session because the application left the
// foreground. The session stays resumable within the resume window.
func (c *Connector) Suspend() {
	c.close(true, "Suspended")
}

func (c *Connector) close(resumable bool, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	// The remote and the record are released before the lock is dropped
	// so a Connect that follows cannot have its new session torn down
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.status.State
	c.abandonLocked()
	if prev != Disconnected {
		c.setStatusLocked(Status{State: Disconnected})
	}

	// An explicit disconnect still clears the resume flag left by a suspend
	if prev == Disconnected && resumable {
		return
	}

	c.logger.Info().Str("from", prev.String()).Msg(msg)

	if prev == Connected {
		if err := c.remote.Disconnect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Remote disconnect failed")
		}
	}
	if err := c.rec.MarkDisconnected(ctx, resumable); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record disconnect")
	}
}

// Dropped reports that an open session ended unexpectedly. The session
// stays resumable only if it was last opened within the resume window.
func (c *Connector) Dropped(cause error) {
	c.mu.Lock()
	if c.status.State != Connected {
		c.mu.Unlock()
		return
	}
	c.abandonLocked()
	msg := "connection lost"
	if cause != nil {
		msg = cause.Error()
	}
	c.setStatusLocked(Status{State: Disconnected, Message: msg})
	c.mu.Unlock()

	c.logger.Warn().Err(cause).Msg("Session dropped")
	c.notifier.Notify(apperr.New(apperr.Transient, "session.dropped", "playback connection lost", cause))

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	resumable := c.CanResume(ctx)
	if err := c.rec.MarkDisconnected(ctx, resumable); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record disconnect")
	}
}

// CanResume reports whether a previous session may be reopened
// automatically: it was not explicitly closed and was last connected
// within the resume window.
func (c *Connector) CanResume(ctx context.Context) bool {
	rec, err := c.rec.Session(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read session record")
		return false
	}
	if !rec.Connected || rec.LastConnectedAt.IsZero() {
		return false
	}
	return c.clock.Since(rec.LastConnectedAt) <= c.cfg.ResumeWindow
}

// Wait blocks until no connection attempt is in flight
func (c *Connector) Wait() {
	c.inflight.Wait()
}

// abandonLocked invalidates in-flight work and stops the retry timer
func (c *Connector) abandonLocked() {
	c.gen++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Connector) setStatusLocked(s Status) {
	s.Since = c.clock.Now()
	c.status = s
	for _, l := range c.listeners {
		l.SessionChanged(s)
	}
}

func (c *Connector) startAttemptLocked() {
	c.attempts++
	attempt := c.attempts
	gen := c.gen
	token := c.token

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	c.cancel = cancel

	c.setStatusLocked(Status{State: Connecting, Attempt: attempt})

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()
		err := c.remote.Connect(ctx, token)
		c.finishAttempt(gen, attempt, err)
	}()
}

func (c *Connector) finishAttempt(gen uint64, attempt int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.status.State != Connecting {
		c.logger.Debug().Int("attempt", attempt).Msg("Ignoring result of abandoned attempt")
		return
	}
	c.cancel = nil

	if err == nil {
		now := c.clock.Now()
		if recErr := c.rec.MarkConnected(context.Background(), now); recErr != nil {
			c.logger.Warn().Err(recErr).Msg("Failed to record connection")
		}
		c.logger.Info().Int("attempt", attempt).Msg("Connected")
		c.setStatusLocked(Status{State: Connected, Attempt: attempt})
		return
	}

	c.logger.Warn().Err(err).Int("attempt", attempt).Int("max", c.cfg.MaxRetries).Msg("Connection attempt failed")

	if errors.Is(err, music.ErrUnauthorized) {
		c.failLocked(apperr.New(apperr.Terminal, "session.connect", "access token rejected", err), attempt)
		return
	}

	if c.attempts >= c.cfg.MaxRetries {
		c.failLocked(apperr.New(apperr.Transient, "session.connect",
			fmt.Sprintf("could not connect after %d attempts", c.attempts), err), attempt)
		return
	}

	delay := c.backoff(attempt)
	c.setStatusLocked(Status{State: Retrying, Message: err.Error(), Attempt: attempt})
	c.retry = c.clock.AfterFunc(delay, func() { c.fireRetry(gen) })

	c.logger.Debug().Dur("delay", delay).Msg("Retry scheduled")
}

func (c *Connector) fireRetry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.status.State != Retrying {
		return
	}
	c.retry = nil
	c.startAttemptLocked()
}

func (c *Connector) failLocked(err *apperr.Error, attempt int) {
	c.setStatusLocked(Status{State: Error, Message: err.Message, Attempt: attempt})
	c.notifier.Notify(err)
}

// backoff returns the delay before the retry following attempt
func (c *Connector) backoff(attempt int) time.Duration {
	d := c.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	if d > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return d
}
