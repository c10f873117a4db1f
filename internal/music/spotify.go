package music

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// SpotifyRemote implements Remote and Controller with the Spotify Web API.
// The Web API has no push channel, so Subscribe is unsupported and
// callers poll PlayerState.
type SpotifyRemote struct {
	apiURL     string
	httpClient *http.Client

	mu     sync.Mutex
	client *spotify.Client
	source *bearerSource
	userID string
}

// bearerSource hands the current access token to every request. The
// oauth2 transport asks for a token per request, so a swapped token is
// used from the next request on.
type bearerSource struct {
	mu    sync.Mutex
	token string
}

func (s *bearerSource) set(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = accessToken
}

// Token implements oauth2.TokenSource
func (s *bearerSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

// SpotifyOption configures a SpotifyRemote
type SpotifyOption func(*SpotifyRemote)

// WithAPIURL overrides the Web API base URL (used for testing)
func WithAPIURL(u string) SpotifyOption {
	return func(r *SpotifyRemote) {
		if u != "" && !strings.HasSuffix(u, "/") {
			u += "/"
		}
		r.apiURL = u
	}
}

// WithHTTPClient sets the base HTTP client used under the bearer transport
func WithHTTPClient(c *http.Client) SpotifyOption {
	return func(r *SpotifyRemote) { r.httpClient = c }
}

// NewSpotifyRemote creates a remote. No request is made until Connect.
func NewSpotifyRemote(opts ...SpotifyOption) *SpotifyRemote {
	r := &SpotifyRemote{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect opens a session by verifying the token against the current user
func (r *SpotifyRemote) Connect(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return ErrUnauthorized
	}

	src := &bearerSource{}
	src.set(accessToken)

	var base http.RoundTripper
	hc := &http.Client{}
	if r.httpClient != nil {
		base = r.httpClient.Transport
		hc.Timeout = r.httpClient.Timeout
	}
	hc.Transport = &oauth2.Transport{Source: src, Base: base}

	var clientOpts []spotify.ClientOption
	if r.apiURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(r.apiURL))
	}
	client := spotify.New(hc, clientOpts...)

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return classify(err, "spotify: failed to get current user")
	}

	r.mu.Lock()
	r.client = client
	r.source = src
	r.userID = user.ID
	r.mu.Unlock()

	return nil
}

// UpdateToken makes the open session authorize later requests with
// accessToken. It does nothing while disconnected.
func (r *SpotifyRemote) UpdateToken(accessToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source != nil && accessToken != "" {
		r.source.set(accessToken)
	}
}

// Disconnect drops the session. The Web API is stateless, so this
// only forgets the client.
func (r *SpotifyRemote) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = nil
	r.source = nil
	r.userID = ""
	return nil
}

// UserID returns the connected user's id, or "" when disconnected
func (r *SpotifyRemote) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

func (r *SpotifyRemote) current() (*spotify.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, ErrDisconnected
	}
	return r.client, nil
}

// PlayerState returns the currently playing item, or nil if nothing is loaded
func (r *SpotifyRemote) PlayerState(ctx context.Context) (*PlayerState, error) {
	client, err := r.current()
	if err != nil {
		return nil, err
	}

	playing, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, classify(err, "spotify: failed to get currently playing")
	}

	return fromCurrentlyPlaying(playing), nil
}

// Subscribe is not supported by the Web API
func (r *SpotifyRemote) Subscribe(ctx context.Context, fn StateFunc) (func(), error) {
	return nil, ErrSubscribeUnsupported
}

// Play resumes playback
func (r *SpotifyRemote) Play(ctx context.Context) error {
	return r.command(ctx, "play", func(c *spotify.Client) error { return c.Play(ctx) })
}

// Pause pauses playback
func (r *SpotifyRemote) Pause(ctx context.Context) error {
	return r.command(ctx, "pause", func(c *spotify.Client) error { return c.Pause(ctx) })
}

// PlayPause toggles between play and pause
func (r *SpotifyRemote) PlayPause(ctx context.Context) error {
	state, err := r.PlayerState(ctx)
	if err != nil {
		return err
	}
	if state != nil && state.State == StatePlaying {
		return r.Pause(ctx)
	}
	return r.Play(ctx)
}

// NextTrack skips to the next track
func (r *SpotifyRemote) NextTrack(ctx context.Context) error {
	return r.command(ctx, "next", func(c *spotify.Client) error { return c.Next(ctx) })
}

// PreviousTrack goes to the previous track
func (r *SpotifyRemote) PreviousTrack(ctx context.Context) error {
	return r.command(ctx, "previous", func(c *spotify.Client) error { return c.Previous(ctx) })
}

// SetShuffle turns shuffle on or off
func (r *SpotifyRemote) SetShuffle(ctx context.Context, enabled bool) error {
	return r.command(ctx, "set shuffle", func(c *spotify.Client) error { return c.Shuffle(ctx, enabled) })
}

// SetVolume sets the volume of the active device (0-100)
func (r *SpotifyRemote) SetVolume(ctx context.Context, level int) error {
	if level < 0 || level > 100 {
		return errors.Errorf("volume must be between 0 and 100, got %d", level)
	}
	return r.command(ctx, "set volume", func(c *spotify.Client) error { return c.Volume(ctx, level) })
}

func (r *SpotifyRemote) command(ctx context.Context, name string, fn func(*spotify.Client) error) error {
	client, err := r.current()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return classify(err, "spotify: failed to "+name)
	}
	return nil
}

// fromCurrentlyPlaying converts the API response into a PlayerState
func fromCurrentlyPlaying(cp *spotify.CurrentlyPlaying) *PlayerState {
	if cp == nil || cp.Item == nil {
		return nil
	}

	item := cp.Item
	names := make([]string, 0, len(item.Artists))
	for _, a := range item.Artists {
		names = append(names, a.Name)
	}

	state := &PlayerState{
		TrackName:  item.Name,
		ArtistName: strings.Join(names, ", "),
		Album:      item.Album.Name,
		Duration:   msDuration(int64(item.Duration)),
		Position:   msDuration(int64(cp.Progress)),
		State:      StatePaused,
	}
	if cp.Playing {
		state.State = StatePlaying
	}
	if len(item.Album.Images) > 0 {
		state.ImageID = item.Album.Images[0].URL
	}
	return state
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// classify wraps vendor errors, mapping rejected tokens to ErrUnauthorized
func classify(err error, msg string) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return errors.Wrap(ErrUnauthorized, msg)
	}
	return errors.Wrap(err, msg)
}
