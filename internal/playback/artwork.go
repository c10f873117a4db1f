package playback

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ArtworkHost serves cover images by id
const ArtworkHost = "https://i.scdn.co/image/"

// ErrNoArtwork is returned for empty image identifiers
var ErrNoArtwork = errors.New("playback: no artwork identifier")

var artworkPrefixes = []string{
	"spotify:image:",
	"https://i.scdn.co/image/",
	"http://i.scdn.co/image/",
}

// ArtworkURL derives the cover image URL from a remote image identifier.
// Both bare ids and already-resolved image URLs are accepted.
func ArtworkURL(imageID string) (*url.URL, error) {
	id := strings.TrimSpace(imageID)
	for _, prefix := range artworkPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	if id == "" {
		return nil, ErrNoArtwork
	}
	if strings.ContainsAny(id, "/?#: ") {
		return nil, fmt.Errorf("playback: unrecognised image identifier %q", imageID)
	}
	return url.Parse(ArtworkHost + id)
}

const maxArtworkEntries = 256

// artworkCache memoizes ArtworkURL results so repeated polls of the
// same track do not reparse.
type artworkCache struct {
	mu    sync.Mutex
	cache map[string]*url.URL
}

func newArtworkCache() *artworkCache {
	return &artworkCache{cache: make(map[string]*url.URL)}
}

// Lookup returns the artwork URL for imageID, or nil on any failure.
// Callers render a placeholder for nil.
func (a *artworkCache) Lookup(imageID string) *url.URL {
	a.mu.Lock()
	if u, ok := a.cache[imageID]; ok {
		a.mu.Unlock()
		return u
	}
	a.mu.Unlock()

	u, err := ArtworkURL(imageID)
	if err != nil {
		u = nil
	}

	a.mu.Lock()
	if len(a.cache) >= maxArtworkEntries {
		a.cache = make(map[string]*url.URL)
	}
	a.cache[imageID] = u
	a.mu.Unlock()

	return u
}
