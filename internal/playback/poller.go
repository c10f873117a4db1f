// Package playback tracks what the remote is playing while a session
// is open.
package playback

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/music"
	"github.com/jfmyers9/desky/internal/session"
)

// ErrNotConnected is returned by Refresh when no session is open
var ErrNotConnected = errors.New("playback: not connected")

// TrackInfo is the display-facing now-playing information
type TrackInfo struct {
	Title      string
	Artist     string
	Album      string
	IsPlaying  bool
	ArtworkURL *url.URL // nil when the artwork could not be derived
	Position   time.Duration
	Duration   time.Duration
}

// Listener observes now-playing changes. A nil info means nothing is
// known, either because the session closed or nothing is loaded.
type Listener interface {
	TrackChanged(info *TrackInfo)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(info *TrackInfo)

// TrackChanged calls f(info)
func (f ListenerFunc) TrackChanged(info *TrackInfo) {
	f(info)
}

// DropFunc is told when a fetch shows the session has gone away
type DropFunc func(err error)

// Option configures a Poller
type Option func(*Poller)

// WithClock sets the clock driving the poll ticker
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) { p.clock = clock }
}

// WithDropHandler sets the callback for lost sessions
func WithDropHandler(fn DropFunc) Option {
	return func(p *Poller) { p.onDrop = fn }
}

// Poller keeps TrackInfo current while the session is Connected. It
// prefers push updates from the remote and falls back to polling at a
// fixed interval. It implements session.Listener.
type Poller struct {
	remote   music.Remote
	interval time.Duration
	clock    clockwork.Clock
	onDrop   DropFunc
	artwork  *artworkCache
	logger   zerolog.Logger

	mu          sync.Mutex
	active      bool
	gen         uint64 // bumped on every start and stop; stale results are dropped
	track       *TrackInfo
	cancel      context.CancelFunc
	unsubscribe func()
	listeners   []Listener

	wg sync.WaitGroup
}

// NewPoller creates a new Poller instance
func NewPoller(remote music.Remote, interval time.Duration, logger zerolog.Logger, opts ...Option) *Poller {
	p := &Poller{
		remote:   remote,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		onDrop:   func(error) {},
		artwork:  newArtworkCache(),
		logger:   logger.With().Str("component", "poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddListener registers l for every subsequent change
func (p *Poller) AddListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Track returns a copy of the current track, or nil
func (p *Poller) Track() *TrackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyTrack(p.track)
}

// Active reports whether the poller is following an open session
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SessionChanged starts following the remote on Connected and stops,
// clearing the track, on any other state.
func (p *Poller) SessionChanged(status session.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status.State == session.Connected {
		p.startLocked()
		return
	}
	p.stopLocked()
}

// Stop stops following the remote and clears the track
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

// Refresh fetches the state once, independent of any subscription or
// ticker, which keep running.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return ErrNotConnected
	}
	gen := p.gen
	p.mu.Unlock()

	state, err := p.remote.PlayerState(ctx)
	p.apply(gen, state, err)
	if err != nil {
		return fmt.Errorf("failed to refresh playback state: %w", err)
	}
	return nil
}

func (p *Poller) startLocked() {
	if p.active {
		p.stopLocked()
	}

	p.gen++
	p.active = true
	gen := p.gen

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info().Dur("interval", p.interval).Msg("Starting poller")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, gen)
	}()
}

func (p *Poller) stopLocked() {
	if !p.active && p.track == nil {
		return
	}

	p.gen++
	if p.active {
		p.logger.Info().Msg("Poller stopped")
	}
	p.active = false

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}

	if p.track != nil {
		p.track = nil
		p.notifyLocked()
	}
}

// run performs the initial fetch, then follows pushed updates or polls
func (p *Poller) run(ctx context.Context, gen uint64) {
	state, err := p.remote.PlayerState(ctx)
	p.apply(gen, state, err)

	unsubscribe, err := p.remote.Subscribe(ctx, func(s *music.PlayerState) {
		p.apply(gen, s, nil)
	})
	if err == nil {
		p.mu.Lock()
		if gen != p.gen {
			p.mu.Unlock()
			unsubscribe()
			return
		}
		p.unsubscribe = unsubscribe
		p.mu.Unlock()

		p.logger.Debug().Msg("Following pushed player state")
		<-ctx.Done()
		return
	}
	if !errors.Is(err, music.ErrSubscribeUnsupported) {
		p.logger.Warn().Err(err).Msg("Subscription failed, falling back to polling")
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			state, err := p.remote.PlayerState(ctx)
			p.apply(gen, state, err)
		}
	}
}

// apply publishes a fetch result if it belongs to the current activation
func (p *Poller) apply(gen uint64, state *music.PlayerState, err error) {
	p.mu.Lock()
	if gen != p.gen || !p.active {
		p.mu.Unlock()
		return
	}

	if err != nil {
		p.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, music.ErrUnauthorized) || errors.Is(err, music.ErrDisconnected) {
			p.logger.Warn().Err(err).Msg("Session lost while fetching player state")
			p.onDrop(err)
			return
		}
		p.logger.Debug().Err(err).Msg("Failed to fetch player state")
		return
	}

	if state == nil && p.track == nil {
		p.mu.Unlock()
		return
	}

	p.track = p.toTrackInfo(state)
	p.notifyLocked()
	p.mu.Unlock()
}

func (p *Poller) notifyLocked() {
	for _, l := range p.listeners {
		l.TrackChanged(copyTrack(p.track))
	}
}

func (p *Poller) toTrackInfo(state *music.PlayerState) *TrackInfo {
	if state == nil {
		return nil
	}
	return &TrackInfo{
		Title:      state.TrackName,
		Artist:     state.ArtistName,
		Album:      state.Album,
		IsPlaying:  !state.Paused(),
		ArtworkURL: p.artwork.Lookup(state.ImageID),
		Position:   state.Position,
		Duration:   state.Duration,
	}
}

func copyTrack(t *TrackInfo) *TrackInfo {
	if t == nil {
		return nil
	}
	c := *t
	if t.ArtworkURL != nil {
		u := *t.ArtworkURL
		c.ArtworkURL = &u
	}
	return &c
}
