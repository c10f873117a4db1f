package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/auth"
	"github.com/jfmyers9/desky/internal/music"
	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/server"
	"github.com/jfmyers9/desky/internal/session"
	"github.com/jfmyers9/desky/internal/store"
)

// Config holds daemon configuration
type Config struct {
	DataDir      string        // Holds desky.db and now.json
	PollInterval time.Duration // How often to read playback state
	ServerAddr   string        // Loopback API address, empty to disable
	APIURL       string        // Spotify Web API base URL, empty for the default
	Auth         auth.Config
	Session      session.Config
	Lifecycle    LifecycleConfig
}

// Player is a remote that also accepts playback commands
type Player interface {
	music.Remote
	music.Controller
}

// Option configures a Daemon
type Option func(*options)

type options struct {
	player Player
	opener auth.Opener
	clock  clockwork.Clock
}

// WithPlayer replaces the Spotify remote
func WithPlayer(p Player) Option {
	return func(o *options) { o.player = p }
}

// WithOpener sets how authorization URLs are opened
func WithOpener(fn auth.Opener) Option {
	return func(o *options) { o.opener = fn }
}

// WithClock sets the clock shared by every timer in the daemon
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Daemon wires the token store, authorization flow, session connector,
// playback poller and lifecycle coordinator together
type Daemon struct {
	config    Config
	store     *store.Store
	flow      *auth.Flow
	player    Player
	conn      *session.Connector
	poller    *playback.Poller
	lifecycle *Coordinator
	state     *State
	server    *server.Server
	errs      *apperr.Last
	logger    zerolog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Daemon instance
func New(cfg Config, logger zerolog.Logger, opts ...Option) (*Daemon, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.player == nil {
		var spotifyOpts []music.SpotifyOption
		if cfg.APIURL != "" {
			spotifyOpts = append(spotifyOpts, music.WithAPIURL(cfg.APIURL))
		}
		o.player = music.NewSpotifyRemote(spotifyOpts...)
	}

	dbPath := ":memory:"
	statePath := ""
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath = filepath.Join(cfg.DataDir, "desky.db")
		statePath = filepath.Join(cfg.DataDir, "now.json")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	errs := &apperr.Last{}

	flowOpts := []auth.Option{auth.WithClock(o.clock), auth.WithNotifier(errs)}
	if o.opener != nil {
		flowOpts = append(flowOpts, auth.WithOpener(o.opener))
	}
	flow, err := auth.NewFlow(cfg.Auth, st, logger, flowOpts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create auth flow: %w", err)
	}

	lifecycleCfg := cfg.Lifecycle
	if lifecycleCfg.RefreshSkew <= 0 {
		lifecycleCfg.RefreshSkew = cfg.Auth.RefreshSkew
	}

	conn := session.New(o.player, st, cfg.Session, logger,
		session.WithClock(o.clock),
		session.WithNotifier(errs),
	)
	poller := playback.NewPoller(o.player, cfg.PollInterval, logger,
		playback.WithClock(o.clock),
		playback.WithDropHandler(conn.Dropped),
	)
	state := NewState(statePath, o.clock, logger)

	// The poller registers first so the track is cleared before anyone
	// else observes a state other than Connected
	conn.AddListener(poller)
	conn.AddListener(state)
	poller.AddListener(state)

	d := &Daemon{
		config:    cfg,
		store:     st,
		flow:      flow,
		player:    o.player,
		conn:      conn,
		poller:    poller,
		lifecycle: NewCoordinator(flow, st, conn, lifecycleCfg, logger, WithLifecycleClock(o.clock)),
		state:     state,
		errs:      errs,
		logger:    logger.With().Str("component", "daemon").Logger(),
	}
	if cfg.ServerAddr != "" {
		d.server = server.New(cfg.ServerAddr, d, logger)
	}
	return d, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	if err := d.lifecycle.Start(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to start lifecycle")
	}

	var wg sync.WaitGroup
	errc := make(chan error, 1)

	if d.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.server.Run(ctx); err != nil {
				d.logger.Error().Err(err).Msg("Local API error")
				errc <- err
			}
		}()
	}

	// Job control maps suspend/continue onto background/foreground
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.watchJobControl(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	d.Stop()
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return err
}

// Stop closes the session (keeping it resumable) and halts polling
func (d *Daemon) Stop() {
	d.lifecycle.Stop()
	d.conn.Suspend()
	d.poller.Stop()
	d.conn.Wait()
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.shutdownOnce.Do(func() {
		d.logger.Info().Msg("Shutting down daemon")
		d.Stop()

		var result *multierror.Error
		if err := d.state.Flush(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to flush state: %w", err))
		}
		if err := d.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close store: %w", err))
		}
		d.shutdownErr = result.ErrorOrNil()
	})
	return d.shutdownErr
}

// Flow returns the authorization flow
func (d *Daemon) Flow() *auth.Flow { return d.flow }

// Player returns the playback controls
func (d *Daemon) Player() music.Controller { return d.player }

// Lifecycle returns the lifecycle coordinator
func (d *Daemon) Lifecycle() *Coordinator { return d.lifecycle }

// AddSessionListener registers l for connector transitions
func (d *Daemon) AddSessionListener(l session.Listener) { d.conn.AddListener(l) }

// AddTrackListener registers l for now-playing updates
func (d *Daemon) AddTrackListener(l playback.Listener) { d.poller.AddListener(l) }

// LastError returns the most recent classified failure
func (d *Daemon) LastError() *apperr.Error { return d.errs.Get() }

// ClearError dismisses the last failure
func (d *Daemon) ClearError() { d.errs.Clear() }

// Snapshot returns what the daemon last published
func (d *Daemon) Snapshot() Snapshot { return d.state.Get() }

// SessionStatus returns the connector status
func (d *Daemon) SessionStatus() session.Status { return d.conn.Status() }

// Track returns the current track, or nil
func (d *Daemon) Track() *playback.TrackInfo { return d.poller.Track() }

// RefreshTrack fetches playback state immediately
func (d *Daemon) RefreshTrack(ctx context.Context) error { return d.poller.Refresh(ctx) }

// Connect refreshes the token if needed and opens the session
func (d *Daemon) Connect(ctx context.Context) error {
	ok, err := d.flow.Authenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrNotAuthenticated
	}
	return d.lifecycle.Connect(ctx)
}

// Disconnect closes the session without keeping it resumable
func (d *Daemon) Disconnect() { d.conn.Disconnect() }

// Foreground forwards to the lifecycle coordinator
func (d *Daemon) Foreground(ctx context.Context) { d.lifecycle.Foreground(ctx) }

// Background forwards to the lifecycle coordinator
func (d *Daemon) Background() { d.lifecycle.Background() }

// HandleRedirect completes an authorization started by Login
func (d *Daemon) HandleRedirect(ctx context.Context, rawURL string) error {
	return d.flow.HandleRedirect(ctx, rawURL)
}

// Login starts authorization and returns the URL the user must visit
func (d *Daemon) Login(ctx context.Context) (string, error) {
	return d.flow.BeginAuthorization(ctx)
}

// Logout closes the session and forgets all credentials
func (d *Daemon) Logout(ctx context.Context) error {
	d.conn.Disconnect()
	return d.flow.Logout(ctx)
}
