// Package studio turns song requests into playable tracks and keeps them.
package studio

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/lyrics"
)

// Track is a generated song. The vocal WAV is set once at creation and
// never modified.
type Track struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Genre           string               `json:"genre"`
	Mood            string               `json:"mood"`
	Tempo           float64              `json:"tempo"`
	Lyrics          string               `json:"lyrics"`
	CreatedAt       time.Time            `json:"created_at"`
	SampleRate      int                  `json:"sample_rate"`
	Duration        float64              `json:"duration"` // vocal seconds
	InstrumentalURL string               `json:"instrumental_url"`
	Thumbnail       string               `json:"thumbnail"`
	Voice           lyrics.VoiceSettings `json:"voice"`

	vocal []byte
}

// VocalWAV returns the encoded vocal. Callers must not modify it.
func (t *Track) VocalWAV() []byte { return t.vocal }

// ThumbnailURL returns cover art seeded by the track ID, so a track keeps
// the same picture for its whole life.
func ThumbnailURL(id string) string {
	return "https://picsum.photos/seed/" + url.PathEscape(id) + "/600/600"
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9 _.-]+`)

// FileName is the title reduced to characters safe in a file name.
func (t *Track) FileName() string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(t.Title, ""), " .")
	if name == "" {
		return "track"
	}
	return name
}

// Library is the in-memory track list, most recent first.
type Library struct {
	mu     sync.RWMutex
	tracks []*Track
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{}
}

// Add puts t at the front of the list.
func (l *Library) Add(t *Track) {
	l.mu.Lock()
	l.tracks = append([]*Track{t}, l.tracks...)
	l.mu.Unlock()
}

// List returns the tracks, most recent first.
func (l *Library) List() []*Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// Get looks a track up by ID.
func (l *Library) Get(id string) (*Track, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperrors.ErrTrackNotFound
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// VocalWAV returns the encoded vocal of track id.
func (l *Library) VocalWAV(id string) ([]byte, error) {
	t, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	return t.vocal, nil
}
