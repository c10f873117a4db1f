package cmd

import (
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jfmyers9/desky/internal/server"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle emoji correctly",
			input:    "🎵 Music",
			width:    15,
			expected: "🎵 Music       ", // emoji is 2 columns wide
		},
		{
			name:     "truncate emoji text",
			input:    "🎵 This is a very long song title",
			width:    15,
			expected: "🎵 This is a...",
		},
		{
			name:     "handle unicode characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate unicode text",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ", // a wide rune cannot fill the last column
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
		{
			name:     "width smaller than ellipsis",
			input:    "Hello",
			width:    2,
			expected: "..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			if tt.width > 0 {
				if w := runewidth.StringWidth(result); w != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d", tt.input, tt.width, w)
				}
			}
		})
	}
}

func TestExtractWindow(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start int
		width int
		want  string
	}{
		{"from start", "Hello World", 0, 5, "Hello"},
		{"middle", "Hello World", 6, 5, "World"},
		{"past end pads", "Hello", 3, 5, "lo   "},
		{"zero width", "Hello", 0, 0, ""},
		{"wide rune at edge", "日本語", 0, 3, "日 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWindow(tt.text, tt.start, tt.width); got != tt.want {
				t.Errorf("extractWindow(%q, %d, %d) = %q, want %q", tt.text, tt.start, tt.width, got, tt.want)
			}
		})
	}
}

func TestMarqueeText(t *testing.T) {
	text := "Boards of Canada - Roygbiv"
	sep := " • "

	t.Run("fits without scrolling", func(t *testing.T) {
		got := marqueeText("Short", 10, 2, sep, time.Unix(1000, 0))
		if got != "Short     " {
			t.Errorf("marqueeText() = %q", got)
		}
	})

	t.Run("starts at the beginning", func(t *testing.T) {
		got := marqueeText(text, 10, 1, sep, time.Unix(0, 0))
		if got != "Boards of " {
			t.Errorf("marqueeText() = %q", got)
		}
	})

	t.Run("advances with time", func(t *testing.T) {
		got := marqueeText(text, 10, 2, sep, time.Unix(5, 0))
		if got != "Canada - R" {
			t.Errorf("marqueeText() = %q", got)
		}
	})

	t.Run("wraps through the separator", func(t *testing.T) {
		loop := len([]rune(text + sep))
		got := marqueeText(text, 10, 1, sep, time.Unix(int64(loop-3), 0))
		if got != sep+"Boards " {
			t.Errorf("marqueeText() = %q", got)
		}
	})

	t.Run("same instant same frame", func(t *testing.T) {
		at := time.Unix(1234567, 0)
		if marqueeText(text, 12, 3, sep, at) != marqueeText(text, 12, 3, sep, at) {
			t.Error("marquee is not deterministic")
		}
	})

	t.Run("always exact width", func(t *testing.T) {
		for sec := int64(0); sec < 40; sec++ {
			got := marqueeText("🎵 日本語のとても長い曲名", 9, 1, sep, time.Unix(sec, 0))
			if w := runewidth.StringWidth(got); w != 9 {
				t.Fatalf("at %d: width %d (%q)", sec, w, got)
			}
		}
	})
}

func TestFormatTrack(t *testing.T) {
	track := newNowTrack(&server.TrackResponse{
		Title:      "Roygbiv",
		Artist:     "Boards of Canada",
		Album:      "Music Has the Right to Children",
		PositionMs: 42_000,
		DurationMs: 151_000,
	})

	tests := []struct {
		format string
		want   string
	}{
		{"{{.Artist}} - {{.Title}}", "Boards of Canada - Roygbiv"},
		{"{{.Title}} ({{.Album}})", "Roygbiv (Music Has the Right to Children)"},
		{"{{.Position}}/{{.Duration}}", "0:42/2:31"},
	}
	for _, tt := range tests {
		got, err := formatTrack(track, tt.format)
		if err != nil {
			t.Fatalf("formatTrack(%q) error: %v", tt.format, err)
		}
		if got != tt.want {
			t.Errorf("formatTrack(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}

	if _, err := formatTrack(track, "{{.Artist"); err == nil {
		t.Error("expected error for malformed template")
	}
	if _, err := formatTrack(track, "{{.Genre}}"); err == nil {
		t.Error("expected error for unknown field")
	}
}
