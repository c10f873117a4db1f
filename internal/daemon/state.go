package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/server"
	"github.com/jfmyers9/desky/internal/session"
)

// defaultPersistInterval bounds how often position-only updates hit disk
const defaultPersistInterval = 5 * time.Second

// Snapshot is the session and now-playing state the daemon publishes
// for status bars
type Snapshot struct {
	Session   string                `json:"session"`
	Message   string                `json:"message,omitempty"`
	Track     *server.TrackResponse `json:"track,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// State tracks the latest snapshot and mirrors it to a file.
// It listens to both the connector and the poller.
type State struct {
	mu       sync.Mutex
	current  Snapshot
	filePath string // Empty disables persistence
	clock    clockwork.Clock
	logger   zerolog.Logger

	persistInterval time.Duration
	lastPersist     time.Time
	dirty           bool
}

// NewState creates a State writing to filePath
func NewState(filePath string, clock clockwork.Clock, logger zerolog.Logger) *State {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &State{
		current:         Snapshot{Session: session.Disconnected.String()},
		filePath:        filePath,
		clock:           clock,
		logger:          logger.With().Str("component", "state").Logger(),
		persistInterval: defaultPersistInterval,
	}
}

// SessionChanged records a connector transition. Leaving Connected also
// clears the track.
func (s *State) SessionChanged(status session.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Session = status.State.String()
	s.current.Message = status.Message
	if status.State != session.Connected {
		s.current.Track = nil
	}
	s.save(s.persist())
}

// TrackChanged records a playback update. Track and play/pause changes
// are written immediately, position-only updates are throttled.
func (s *State) TrackChanged(info *playback.TrackInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *server.TrackResponse
	if info != nil {
		resp := server.NewTrackResponse(info)
		next = &resp
	}

	prev := s.current.Track
	s.current.Track = next

	if isSameTrack(prev, next) && prev.IsPlaying == next.IsPlaying {
		s.save(s.throttledPersist())
		return
	}
	s.save(s.persist())
}

// Get returns a copy of the current snapshot
func (s *State) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.current
	if snap.Track != nil {
		track := *snap.Track
		snap.Track = &track
	}
	return snap
}

// Flush writes any throttled update to disk
func (s *State) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

func (s *State) save(err error) {
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.filePath).Msg("Failed to write state")
	}
}

// throttledPersist writes only if persistInterval has passed since the
// last write, otherwise it marks the state dirty.
// Must be called with lock held
func (s *State) throttledPersist() error {
	if s.clock.Since(s.lastPersist) < s.persistInterval {
		s.dirty = true
		return nil
	}
	return s.persist()
}

// persist saves the current snapshot to disk
// Must be called with lock held
func (s *State) persist() error {
	if s.filePath == "" {
		return nil
	}

	s.current.UpdatedAt = s.clock.Now()

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return err
	}

	s.lastPersist = s.clock.Now()
	s.dirty = false
	return nil
}

// ReadSnapshot loads a snapshot written by a daemon
func ReadSnapshot(filePath string) (*Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// isSameTrack compares two tracks to determine if they're the same
func isSameTrack(t1, t2 *server.TrackResponse) bool {
	if t1 == nil || t2 == nil {
		return false
	}
	return t1.Title == t2.Title &&
		t1.Artist == t2.Artist &&
		t1.Album == t2.Album
}
