// Package backing resolves a genre to its instrumental backing track and
// fetches it.
package backing

import (
	"sort"
	"strings"
)

// DefaultFallback is the genre used when a requested genre has no entry.
const DefaultFallback = "Pop"

// defaultTracks is the built-in genre table. Order is the display order.
var defaultTracks = []struct {
	Genre string
	URL   string
}{
	{"Pop", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"},
	{"Ballad", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-2.mp3"},
	{"Rock", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-3.mp3"},
	{"EDM", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-4.mp3"},
	{"Bolero", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-5.mp3"},
	{"Lofi", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-8.mp3"},
	{"Hip-hop", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-10.mp3"},
	{"Acoustic", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-12.mp3"},
}

// Catalog maps genre names to backing track URLs. Lookups ignore case.
type Catalog struct {
	fallback string
	names    []string          // canonical names, display order
	urls     map[string]string // lower-case genre -> URL
	canon    map[string]string // lower-case genre -> canonical name
}

// NewCatalog builds the built-in table with overrides applied on top.
// Overrides may replace an entry or add a new genre. A fallback that is not
// in the resulting table is replaced by DefaultFallback.
func NewCatalog(fallback string, overrides map[string]string) *Catalog {
	c := &Catalog{
		urls:  make(map[string]string),
		canon: make(map[string]string),
	}
	for _, t := range defaultTracks {
		c.put(t.Genre, t.URL)
	}

	extra := make([]string, 0, len(overrides))
	for g := range overrides {
		extra = append(extra, g)
	}
	sort.Strings(extra)
	for _, g := range extra {
		c.put(g, overrides[g])
	}

	if _, ok := c.urls[strings.ToLower(fallback)]; ok {
		c.fallback = c.canon[strings.ToLower(fallback)]
	} else {
		c.fallback = DefaultFallback
	}
	return c
}

func (c *Catalog) put(genre, url string) {
	key := strings.ToLower(strings.TrimSpace(genre))
	if key == "" || url == "" {
		return
	}
	if _, exists := c.canon[key]; !exists {
		c.canon[key] = genre
		c.names = append(c.names, genre)
	}
	c.urls[key] = url
}

// Lookup returns the backing URL for genre. fallback is true when genre had
// no entry and the fallback genre's track was returned instead.
func (c *Catalog) Lookup(genre string) (url string, fallback bool) {
	if u, ok := c.urls[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return u, false
	}
	return c.urls[strings.ToLower(c.fallback)], true
}

// Fallback returns the fallback genre name.
func (c *Catalog) Fallback() string { return c.fallback }

// Genres returns all genre names in display order.
func (c *Catalog) Genres() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// IsValidGenre checks if a genre has its own entry.
func (c *Catalog) IsValidGenre(name string) bool {
	_, ok := c.urls[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Canonical returns the catalog spelling of genre, or the fallback genre.
func (c *Catalog) Canonical(genre string) string {
	if n, ok := c.canon[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return n
	}
	return c.fallback
}
