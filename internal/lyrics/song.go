// Package lyrics holds the song model shared by the lyric writers and the
// prompts sent to them.
package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// Song is the structured result of lyric generation.
type Song struct {
	Title  string  `json:"title"`
	Genre  string  `json:"genre"`
	Mood   string  `json:"mood"`
	Lyrics string  `json:"lyrics"`
	Tempo  float64 `json:"tempo"`
}

// VoiceSettings describe the requested singer. Only passed through to the
// vocal prompt.
type VoiceSettings struct {
	Region      string `json:"region,omitempty"` // north, central, south
	Age         string `json:"age,omitempty"`    // child, young, mature, senior
	SingerStyle string `json:"singer_style,omitempty"`
	VoiceName   string `json:"voice_name,omitempty"`
}

// Writer produces song lyrics for a concept.
type Writer interface {
	GenerateLyrics(ctx context.Context, concept, genre, customLyrics string) (Song, error)
}

// ParseSong decodes a model's JSON answer. Custom lyrics, when given,
// replace whatever lyrics the model returned. A missing genre defaults to
// the requested one.
func ParseSong(text, genre, customLyrics string) (Song, error) {
	text = stripFences(text)
	if text == "" {
		return Song{}, fmt.Errorf("%w: empty response", apperrors.ErrGenerationFailed)
	}

	var s Song
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Song{}, fmt.Errorf("%w: decode song: %v", apperrors.ErrGenerationFailed, err)
	}

	if strings.TrimSpace(customLyrics) != "" {
		s.Lyrics = customLyrics
	}
	s.Title = strings.TrimSpace(s.Title)
	s.Lyrics = strings.TrimSpace(s.Lyrics)
	if s.Lyrics == "" {
		return Song{}, fmt.Errorf("%w: song has no lyrics", apperrors.ErrGenerationFailed)
	}
	if s.Title == "" {
		s.Title = "Untitled"
	}
	if strings.TrimSpace(s.Genre) == "" {
		s.Genre = genre
	}
	return s, nil
}

// stripFences removes a ```json ... ``` wrapper and leaked think blocks.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
