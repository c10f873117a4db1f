package playback

import (
	"errors"
	"testing"
)

func TestArtworkURL(t *testing.T) {
	tests := []struct {
		name    string
		imageID string
		want    string
		wantErr bool
	}{
		{"spotify uri", "spotify:image:ab67616d0000b273", "https://i.scdn.co/image/ab67616d0000b273", false},
		{"bare id", "ab67616d0000b273", "https://i.scdn.co/image/ab67616d0000b273", false},
		{"resolved url", "https://i.scdn.co/image/ab67616d0000b273", "https://i.scdn.co/image/ab67616d0000b273", false},
		{"insecure url", "http://i.scdn.co/image/abc", "https://i.scdn.co/image/abc", false},
		{"empty", "", "", true},
		{"prefix only", "spotify:image:", "", true},
		{"foreign url", "https://example.com/cover.jpg", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ArtworkURL(tt.imageID)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ArtworkURL(%q) = %v, want error", tt.imageID, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ArtworkURL(%q) error: %v", tt.imageID, err)
			}
			if got.String() != tt.want {
				t.Errorf("ArtworkURL(%q) = %q, want %q", tt.imageID, got, tt.want)
			}
		})
	}

	if _, err := ArtworkURL(""); !errors.Is(err, ErrNoArtwork) {
		t.Errorf("empty id error = %v, want ErrNoArtwork", err)
	}
}

func TestArtworkCache(t *testing.T) {
	c := newArtworkCache()

	first := c.Lookup("spotify:image:abc")
	second := c.Lookup("spotify:image:abc")
	if first == nil || first != second {
		t.Errorf("expected cached pointer, got %p and %p", first, second)
	}

	if c.Lookup("not a valid id") != nil {
		t.Error("invalid id should yield nil for a placeholder")
	}
}
