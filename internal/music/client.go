package music

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthorized is returned when the access token was rejected
	ErrUnauthorized = errors.New("music: access token rejected")

	// ErrDisconnected is returned when no session is open
	ErrDisconnected = errors.New("music: not connected")

	// ErrSubscribeUnsupported is returned by remotes without push updates
	ErrSubscribeUnsupported = errors.New("music: player state subscription not supported")
)

// PlayState represents the current playback state of the player
type PlayState int

const (
	StateStopped PlayState = iota // No track loaded
	StatePlaying                  // Track is currently playing
	StatePaused                   // Track is paused
)

// String returns a human-readable representation of the PlayState
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlayerState is the raw playback state reported by the remote
type PlayerState struct {
	TrackName  string        // Track name/title
	ArtistName string        // Artist names, comma separated
	Album      string        // Album name
	ImageID    string        // Artwork identifier or URL as reported by the remote
	Duration   time.Duration // Total track duration
	Position   time.Duration // Current playback position
	State      PlayState     // Current playback state
}

// Paused reports whether playback is not advancing
func (s *PlayerState) Paused() bool {
	return s.State != StatePlaying
}

// StateFunc receives pushed player state updates
type StateFunc func(state *PlayerState)

// Remote is a playback-control session with the music service
type Remote interface {
	// Connect opens a session authorized by accessToken
	Connect(ctx context.Context, accessToken string) error

	// Disconnect closes the session
	Disconnect(ctx context.Context) error

	// PlayerState returns the current state, or nil if nothing is loaded
	PlayerState(ctx context.Context) (*PlayerState, error)

	// Subscribe registers fn for pushed updates and returns a cancel func.
	// Remotes without push support return ErrSubscribeUnsupported.
	Subscribe(ctx context.Context, fn StateFunc) (func(), error)
}

// TokenUpdater is implemented by remotes that can swap the access token
// of an open session without reconnecting
type TokenUpdater interface {
	UpdateToken(accessToken string)
}

// Controller sends playback commands
type Controller interface {
	// Play resumes playback
	Play(ctx context.Context) error

	// Pause pauses playback
	Pause(ctx context.Context) error

	// PlayPause toggles between play and pause
	PlayPause(ctx context.Context) error

	// NextTrack skips to the next track
	NextTrack(ctx context.Context) error

	// PreviousTrack goes to the previous track
	PreviousTrack(ctx context.Context) error
}
