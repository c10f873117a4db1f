package music

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const currentlyPlayingJSON = `{
	"progress_ms": 61000,
	"is_playing": true,
	"item": {
		"name": "Windowlicker",
		"duration_ms": 365000,
		"artists": [{"name": "Aphex Twin"}, {"name": "Richard D. James"}],
		"album": {
			"name": "Windowlicker",
			"images": [{"url": "https://i.scdn.co/image/ab67616d0000b273", "height": 640, "width": 640}]
		}
	}
}`

type fakeAPI struct {
	mu       sync.Mutex
	token    string
	playing  string // body for currently-playing, "" means 204
	commands []string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		f.mu.Lock()
		token := f.token
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"status":401,"message":"The access token expired"}}`))
			return false
		}
		return true
	}

	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"id":"listener","display_name":"Listener"}`))
	})
	mux.HandleFunc("/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		f.mu.Lock()
		body := f.playing
		f.mu.Unlock()
		if body == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(body))
	})
	for _, path := range []string{"/me/player/play", "/me/player/pause", "/me/player/next", "/me/player/previous", "/me/player/shuffle", "/me/player/volume"} {
		path := path
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if !authorized(w, r) {
				return
			}
			f.mu.Lock()
			f.commands = append(f.commands, r.Method+" "+r.URL.RequestURI())
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return mux
}

func newTestRemote(t *testing.T, api *fakeAPI) *SpotifyRemote {
	t.Helper()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)
	return NewSpotifyRemote(WithAPIURL(server.URL), WithHTTPClient(server.Client()))
}

func TestSpotifyRemoteConnect(t *testing.T) {
	api := &fakeAPI{token: "good"}
	remote := newTestRemote(t, api)
	ctx := context.Background()

	t.Run("rejected token", func(t *testing.T) {
		err := remote.Connect(ctx, "expired")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Connect() error = %v, want ErrUnauthorized", err)
		}
		if remote.UserID() != "" {
			t.Error("remote should stay disconnected")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		if err := remote.Connect(ctx, ""); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Connect() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		if err := remote.Connect(ctx, "good"); err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		if remote.UserID() != "listener" {
			t.Errorf("UserID() = %q, want listener", remote.UserID())
		}
	})
}

func TestSpotifyRemotePlayerState(t *testing.T) {
	api := &fakeAPI{token: "good", playing: currentlyPlayingJSON}
	remote := newTestRemote(t, api)
	ctx := context.Background()

	if _, err := remote.PlayerState(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("PlayerState() before connect = %v, want ErrDisconnected", err)
	}

	if err := remote.Connect(ctx, "good"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	state, err := remote.PlayerState(ctx)
	if err != nil {
		t.Fatalf("PlayerState() error: %v", err)
	}
	if state == nil {
		t.Fatal("expected a player state")
	}

	if state.TrackName != "Windowlicker" {
		t.Errorf("TrackName = %q", state.TrackName)
	}
	if state.ArtistName != "Aphex Twin, Richard D. James" {
		t.Errorf("ArtistName = %q", state.ArtistName)
	}
	if state.ImageID != "https://i.scdn.co/image/ab67616d0000b273" {
		t.Errorf("ImageID = %q", state.ImageID)
	}
	if state.Duration != 365*time.Second {
		t.Errorf("Duration = %v", state.Duration)
	}
	if state.Position != 61*time.Second {
		t.Errorf("Position = %v", state.Position)
	}
	if state.Paused() {
		t.Error("expected playing state")
	}

	api.mu.Lock()
	api.playing = ""
	api.mu.Unlock()

	state, err = remote.PlayerState(ctx)
	if err != nil {
		t.Fatalf("PlayerState() with nothing playing: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state when nothing is playing, got %+v", state)
	}

	if err := remote.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if _, err := remote.PlayerState(ctx); !errors.Is(err, ErrDisconnected) {
		t.Errorf("PlayerState() after disconnect = %v, want ErrDisconnected", err)
	}
}

func TestSpotifyRemoteCommands(t *testing.T) {
	api := &fakeAPI{token: "good", playing: currentlyPlayingJSON}
	remote := newTestRemote(t, api)
	ctx := context.Background()

	if err := remote.NextTrack(ctx); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("NextTrack() before connect = %v, want ErrDisconnected", err)
	}

	if err := remote.Connect(ctx, "good"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	steps := []func(context.Context) error{
		remote.Pause,
		remote.Play,
		remote.NextTrack,
		remote.PreviousTrack,
		remote.PlayPause, // currently playing, so pauses
		func(ctx context.Context) error { return remote.SetShuffle(ctx, true) },
		func(ctx context.Context) error { return remote.SetVolume(ctx, 40) },
	}
	for i, step := range steps {
		if err := step(ctx); err != nil {
			t.Fatalf("command %d failed: %v", i, err)
		}
	}

	want := []string{
		"PUT /me/player/pause",
		"PUT /me/player/play",
		"POST /me/player/next",
		"POST /me/player/previous",
		"PUT /me/player/pause",
		"PUT /me/player/shuffle?state=true",
		"PUT /me/player/volume?volume_percent=40",
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.commands) != len(want) {
		t.Fatalf("commands = %v, want %v", api.commands, want)
	}
	for i := range want {
		if api.commands[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, api.commands[i], want[i])
		}
	}
}

func TestSetVolumeRange(t *testing.T) {
	api := &fakeAPI{token: "good"}
	remote := newTestRemote(t, api)
	ctx := context.Background()
	if err := remote.Connect(ctx, "good"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	for _, level := range []int{-1, 101} {
		if err := remote.SetVolume(ctx, level); err == nil {
			t.Errorf("SetVolume(%d) succeeded", level)
		}
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.commands) != 0 {
		t.Errorf("out of range volume reached the API: %v", api.commands)
	}
}

func TestSubscribeUnsupported(t *testing.T) {
	remote := NewSpotifyRemote()
	if _, err := remote.Subscribe(context.Background(), func(*PlayerState) {}); !errors.Is(err, ErrSubscribeUnsupported) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeUnsupported", err)
	}
}

func TestPlayStateString(t *testing.T) {
	tests := []struct {
		state PlayState
		want  string
	}{
		{StateStopped, "stopped"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{PlayState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("PlayState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSpotifyRemoteUpdateToken(t *testing.T) {
	api := &fakeAPI{token: "at-1", playing: currentlyPlayingJSON}
	remote := newTestRemote(t, api)
	ctx := context.Background()

	// Ignored while disconnected
	remote.UpdateToken("at-0")

	if err := remote.Connect(ctx, "at-1"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	api.mu.Lock()
	api.token = "at-2"
	api.mu.Unlock()

	if _, err := remote.PlayerState(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("PlayerState() with the old token = %v, want ErrUnauthorized", err)
	}

	remote.UpdateToken("at-2")
	state, err := remote.PlayerState(ctx)
	if err != nil {
		t.Fatalf("PlayerState() after UpdateToken error: %v", err)
	}
	if state == nil || state.TrackName != "Windowlicker" {
		t.Errorf("state = %+v", state)
	}
}
