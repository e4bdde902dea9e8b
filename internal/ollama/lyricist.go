package ollama

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/lyrics"
)

// Lyricist writes songs with a local LLM. It produces the same Song shape
// as the Gemini writer.
type Lyricist struct {
	client *Client
	logger *zap.Logger
}

// NewLyricist creates a lyric writer backed by an Ollama client.
func NewLyricist(client *Client, logger *zap.Logger) *Lyricist {
	return &Lyricist{client: client, logger: logger}
}

// lyricistSystemPrompt frames the model as a songwriter answering in JSON.
const lyricistSystemPrompt = `You are a professional songwriter.

Write singable lyrics with a clear structure. Mark every section with a tag
on its own line: [Verse], [Chorus], [Bridge].

` + lyrics.SongSchemaHint + `

NEVER include explanations, markdown or anything outside the JSON object.

/no_think`

// GenerateLyrics implements lyrics.Writer.
func (l *Lyricist) GenerateLyrics(ctx context.Context, concept, genre, customLyrics string) (lyrics.Song, error) {
	raw, err := l.client.GenerateJSON(ctx, lyricistSystemPrompt, lyrics.LyricsPrompt(concept, genre, customLyrics))
	if err != nil {
		return lyrics.Song{}, fmt.Errorf("%w: %v", apperrors.ErrGenerationFailed, err)
	}

	song, err := lyrics.ParseSong(cleanResponse(raw), genre, customLyrics)
	if err != nil {
		l.logger.Warn("ollama returned unusable song", zap.String("raw", lyrics.Truncate(raw, 200)))
		return lyrics.Song{}, err
	}

	l.logger.Info("lyrics generated",
		zap.String("writer", "ollama"),
		zap.String("model", l.client.Model()),
		zap.String("title", song.Title))
	return song, nil
}

// cleanResponse strips common LLM artifacts from output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// Strip thinking tags (Qwen 3 thinking mode leakage)
	if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("</think>"):])
	}

	// Strip common preambles before the object
	if idx := strings.Index(s, "{"); idx > 0 {
		s = s[idx:]
	}
	if idx := strings.LastIndex(s, "}"); idx >= 0 && idx < len(s)-1 {
		s = s[:idx+1]
	}

	return strings.TrimSpace(s)
}
