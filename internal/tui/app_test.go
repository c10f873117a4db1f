package tui

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/session"
	"github.com/jfmyers9/desky/pkg/openweather"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{3*time.Minute + 7*time.Second, "03:07"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		position time.Duration
		duration time.Duration
		filled   int
		empty    int
	}{
		{"start", 0, time.Minute, 0, 10},
		{"half", 30 * time.Second, time.Minute, 5, 5},
		{"past end", 2 * time.Minute, time.Minute, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := buildProgressBar(tt.position, tt.duration, 10)
			if got := strings.Count(bar, "█"); got != tt.filled {
				t.Errorf("filled = %d, want %d", got, tt.filled)
			}
			if got := strings.Count(bar, "░"); got != tt.empty {
				t.Errorf("empty = %d, want %d", got, tt.empty)
			}
		})
	}

	if got := buildProgressBar(time.Second, 0, 4); got != "----" {
		t.Errorf("unknown duration bar = %q", got)
	}
}

func TestRenderTrack(t *testing.T) {
	if got := renderTrack(nil); !strings.Contains(got, "No track playing") {
		t.Errorf("renderTrack(nil) = %q", got)
	}

	art, _ := url.Parse("https://i.scdn.co/image/ab67616d0000b273")
	track := &playback.TrackInfo{
		Title:      "Windowlicker [Edit]",
		Artist:     "Aphex Twin",
		Album:      "Windowlicker",
		ArtworkURL: art,
	}
	got := renderTrack(track)
	if !strings.Contains(got, "Aphex Twin") || !strings.Contains(got, "⏸") {
		t.Errorf("paused track = %q", got)
	}
	if !strings.Contains(got, "Windowlicker [Edit[]") {
		t.Errorf("title should be escaped: %q", got)
	}
	if !strings.Contains(got, art.String()) {
		t.Errorf("missing artwork url: %q", got)
	}

	track.IsPlaying = true
	if got := renderTrack(track); !strings.Contains(got, "▶") {
		t.Errorf("playing track = %q", got)
	}
}

func TestRenderSession(t *testing.T) {
	tests := []struct {
		status session.Status
		want   []string
	}{
		{session.Status{State: session.Connected}, []string{"[green]connected"}},
		{session.Status{State: session.Retrying, Attempt: 2, Message: "connection refused"}, []string{"[yellow]retrying", "attempt 2", "connection refused"}},
		{session.Status{State: session.Error, Message: "could not connect after 3 attempts"}, []string{"[red]error", "3 attempts"}},
		{session.Status{State: session.Disconnected}, []string{"[gray]disconnected"}},
	}
	for _, tt := range tests {
		t.Run(tt.status.State.String(), func(t *testing.T) {
			got := renderSession(tt.status)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("renderSession() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestRenderClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 21, 4, 5, 0, time.UTC)

	if got := renderClock(now, true); !strings.Contains(got, "21:04:05") {
		t.Errorf("24h clock = %q", got)
	}
	got := renderClock(now, false)
	if !strings.Contains(got, "9:04:05 PM") {
		t.Errorf("12h clock = %q", got)
	}
	if !strings.Contains(got, "Friday, 1 May 2026") {
		t.Errorf("date = %q", got)
	}
}

func TestRenderWeather(t *testing.T) {
	cur := &openweather.Current{
		Conditions: openweather.Conditions{
			Temperature: 14.2,
			FeelsLike:   13.6,
			TempMin:     12.9,
			TempMax:     15.1,
			Humidity:    81,
			WindSpeed:   4.6,
			Description: "light rain",
		},
		Name:    "Lisbon",
		Country: "PT",
	}

	tests := []struct {
		name       string
		wx         weatherState
		units      openweather.Units
		configured bool
		want       []string
	}{
		{"not configured", weatherState{}, openweather.Metric, false, []string{"weather.api_key"}},
		{"loading", weatherState{}, openweather.Metric, true, []string{"Loading"}},
		{"failed", weatherState{err: errors.New("openweather: status 401")}, openweather.Metric, true, []string{"[red]", "401"}},
		{"metric", weatherState{current: cur}, openweather.Metric, true, []string{"14°C", "light rain", "Lisbon, PT", "Humidity 81%", "4.6 m/s"}},
		{"imperial", weatherState{current: cur}, openweather.Imperial, true, []string{"14°F", "mph"}},
		{"stale", weatherState{current: cur, err: errors.New("timeout")}, openweather.Metric, true, []string{"Lisbon", "Last update failed: timeout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderWeather(tt.wx, tt.units, tt.configured)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("renderWeather() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestRenderBanner(t *testing.T) {
	if got := renderBanner(nil, ""); got != "" {
		t.Errorf("empty banner = %q", got)
	}
	if got := renderBanner(nil, "no active device"); !strings.Contains(got, "no active device") {
		t.Errorf("action banner = %q", got)
	}

	transient := apperr.New(apperr.Transient, "session.connect", "could not connect after 3 attempts", nil)
	if got := renderBanner(transient, ""); !strings.HasPrefix(got, "[yellow]") {
		t.Errorf("transient banner = %q", got)
	}
	terminal := apperr.New(apperr.Terminal, "auth.exchange", "Invalid authorization code (invalid_grant)", nil)
	if got := renderBanner(terminal, "ignored"); !strings.HasPrefix(got, "[red]") || strings.Contains(got, "ignored") {
		t.Errorf("terminal banner = %q", got)
	}
}

func TestRenderTabBar(t *testing.T) {
	got := renderTabBar(TabClock)
	if !strings.Contains(got, "[black:white] 2 Clock [-:-]") {
		t.Errorf("active tab not highlighted: %q", got)
	}
	if !strings.Contains(got, "[gray] 1 Now Playing [-]") || !strings.Contains(got, "[gray] 3 Weather [-]") {
		t.Errorf("inactive tabs = %q", got)
	}
}
