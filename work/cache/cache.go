package cache

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// maxPlaylists bounds how many playlist bodies are kept at once.
const maxPlaylists = 256

// PlaylistCache keeps fetched playlist bodies keyed by source URL so a reload
// within the cache duration does not hit the sources again. A disabled cache
// never stores anything.
type PlaylistCache struct {
	store   *otter.Cache[string, string]
	enabled bool
}

// NewPlaylistCache creates a cache whose entries expire duration after being written.
func NewPlaylistCache(enabled bool, duration time.Duration) *PlaylistCache {
	return &PlaylistCache{
		enabled: enabled,
		store: otter.Must(&otter.Options[string, string]{
			MaximumSize:      maxPlaylists,
			ExpiryCalculator: otter.ExpiryWriting[string, string](duration),
		}),
	}
}

// Get returns the cached body for url, if present and not expired.
func (c *PlaylistCache) Get(url string) (string, bool) {
	if c == nil || !c.enabled {
		return "", false
	}
	return c.store.GetIfPresent(url)
}

// Set stores the body fetched from url.
func (c *PlaylistCache) Set(url, body string) {
	if c == nil || !c.enabled {
		return
	}
	c.store.Set(url, body)
}

// Clear forgets every cached body, used when a reload must hit the sources.
func (c *PlaylistCache) Clear() {
	if c == nil {
		return
	}
	c.store.InvalidateAll()
}
