package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/session"
)

type fakeBackend struct {
	mu         sync.Mutex
	status     session.Status
	track      *playback.TrackInfo
	refreshErr error
	events     []string
	redirects  []string
}

func (f *fakeBackend) SessionStatus() session.Status { return f.status }
func (f *fakeBackend) Track() *playback.TrackInfo    { return f.track }

func (f *fakeBackend) RefreshTrack(ctx context.Context) error {
	f.record("refresh")
	return f.refreshErr
}

func (f *fakeBackend) Connect(ctx context.Context) error {
	f.record("connect")
	return nil
}

func (f *fakeBackend) Disconnect()                    { f.record("disconnect") }
func (f *fakeBackend) Foreground(ctx context.Context) { f.record("foreground") }
func (f *fakeBackend) Background()                    { f.record("background") }

func (f *fakeBackend) HandleRedirect(ctx context.Context, rawURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, rawURL)
	return nil
}

func (f *fakeBackend) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBackend) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestServer(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(New("127.0.0.1:0", backend, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestSessionEndpoint(t *testing.T) {
	since := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	backend := &fakeBackend{status: session.Status{
		State:   session.Error,
		Message: "could not connect after 3 attempts",
		Attempt: 3,
		Since:   since,
	}}
	client := newTestServer(t, backend)

	got, err := client.Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if got.State != "error" || got.Attempt != 3 || got.Message == "" {
		t.Errorf("unexpected session %+v", got)
	}
	if !got.Since.Equal(since) {
		t.Errorf("Since = %v, want %v", got.Since, since)
	}
}

func TestTrackEndpoint(t *testing.T) {
	art, _ := url.Parse("https://i.scdn.co/image/abc")
	backend := &fakeBackend{}
	client := newTestServer(t, backend)
	ctx := context.Background()

	if _, err := client.Track(ctx); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("Track() with nothing playing = %v, want ErrNoTrack", err)
	}

	backend.track = &playback.TrackInfo{
		Title:      "Alberto Balsalm",
		Artist:     "Aphex Twin",
		IsPlaying:  true,
		ArtworkURL: art,
		Position:   90 * time.Second,
		Duration:   5 * time.Minute,
	}

	got, err := client.Track(ctx)
	if err != nil {
		t.Fatalf("Track() error: %v", err)
	}
	if got.Title != "Alberto Balsalm" || got.ArtworkURL != "https://i.scdn.co/image/abc" {
		t.Errorf("unexpected track %+v", got)
	}
	if got.PositionMs != 90000 || got.DurationMs != 300000 {
		t.Errorf("position/duration = %d/%d", got.PositionMs, got.DurationMs)
	}
}

func TestLifecycleEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestServer(t, backend)
	ctx := context.Background()

	if err := client.Lifecycle(ctx, "background"); err != nil {
		t.Fatalf("Lifecycle(background) error: %v", err)
	}
	if err := client.Lifecycle(ctx, "foreground"); err != nil {
		t.Fatalf("Lifecycle(foreground) error: %v", err)
	}
	if err := client.Lifecycle(ctx, "sideways"); err == nil {
		t.Error("expected error for unknown event")
	}

	got := backend.recorded()
	if len(got) != 2 || got[0] != "background" || got[1] != "foreground" {
		t.Errorf("events = %v", got)
	}
}

func TestSessionControlEndpoints(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestServer(t, backend)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}

	got := backend.recorded()
	if len(got) != 2 || got[0] != "connect" || got[1] != "disconnect" {
		t.Errorf("events = %v", got)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	backend := &fakeBackend{refreshErr: playback.ErrNotConnected}
	srv := httptest.NewServer(New("", backend, zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/track/refresh", "", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestRedirectEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestServer(t, backend)

	if err := client.Redirect(context.Background(), "desky://callback?code=ABC123"); err != nil {
		t.Fatalf("Redirect() error: %v", err)
	}
	if len(backend.redirects) != 1 || backend.redirects[0] != "desky://callback?code=ABC123" {
		t.Errorf("redirects = %v", backend.redirects)
	}
}

func TestLoopbackOnly(t *testing.T) {
	handler := LoopbackOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"192.168.1.20:5000", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
