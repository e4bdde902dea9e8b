// Package gemini is the generation collaborator: lyrics as structured JSON
// and a sung vocal as audio, both from Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/lyrics"
)

// Config selects models and vocal decoding.
type Config struct {
	APIKey          string
	LyricsModel     string
	VoiceModel      string
	VoiceName       string // prebuilt voice when the request names none
	VocalFormat     string // auto, pcm or container
	VocalSampleRate int    // raw PCM rate when the MIME type carries none
}

func (c *Config) applyDefaults() {
	if c.LyricsModel == "" {
		c.LyricsModel = "gemini-2.5-flash"
	}
	if c.VoiceModel == "" {
		c.VoiceModel = "gemini-2.5-flash-preview-tts"
	}
	if c.VoiceName == "" {
		c.VoiceName = "Kore"
	}
	if c.VocalFormat == "" {
		c.VocalFormat = FormatAuto
	}
	if c.VocalSampleRate <= 0 {
		c.VocalSampleRate = 24000
	}
}

// contentGenerator is the slice of *genai.Models this package calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client talks to Gemini.
type Client struct {
	cfg    Config
	models contentGenerator
	logger *zap.Logger
}

// NewClient creates a Gemini client. An empty API key is ErrConfiguration.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.ErrConfiguration
	}
	cfg.applyDefaults()

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %v", apperrors.ErrConfiguration, err)
	}
	return newClient(cfg, gc.Models, logger), nil
}

func newClient(cfg Config, models contentGenerator, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, models: models, logger: logger}
}

// songSchema mirrors lyrics.Song.
var songSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":  {Type: genai.TypeString},
		"genre":  {Type: genai.TypeString},
		"mood":   {Type: genai.TypeString},
		"lyrics": {Type: genai.TypeString},
		"tempo":  {Type: genai.TypeNumber},
	},
	Required: []string{"title", "genre", "mood", "lyrics", "tempo"},
}

// GenerateLyrics asks the lyrics model for a song. Custom lyrics replace the
// returned lyrics; the model then only supplies title, mood and tempo.
func (c *Client) GenerateLyrics(ctx context.Context, concept, genre, customLyrics string) (lyrics.Song, error) {
	prompt := lyrics.LyricsPrompt(concept, genre, customLyrics)

	resp, err := c.models.GenerateContent(ctx, c.cfg.LyricsModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   songSchema,
	})
	if err != nil {
		return lyrics.Song{}, fmt.Errorf("%w: %v", apperrors.ErrGenerationFailed, err)
	}

	song, err := lyrics.ParseSong(responseText(resp), genre, customLyrics)
	if err != nil {
		return lyrics.Song{}, err
	}
	c.logger.Info("lyrics generated",
		zap.String("title", song.Title),
		zap.String("genre", song.Genre),
		zap.Float64("tempo", song.Tempo))
	return song, nil
}

// GenerateVocal asks the voice model to sing text. A response without
// inline audio is ErrVocalSynthesisFailed.
func (c *Client) GenerateVocal(ctx context.Context, text, genre string, voice lyrics.VoiceSettings) (Vocal, error) {
	voiceName := voice.VoiceName
	if voiceName == "" {
		voiceName = c.cfg.VoiceName
	}
	prompt := lyrics.VocalPrompt(text, genre, voice)

	resp, err := c.models.GenerateContent(ctx, c.cfg.VoiceModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		},
	})
	if err != nil {
		return Vocal{}, fmt.Errorf("%w: %v", apperrors.ErrVocalSynthesisFailed, err)
	}

	blob := inlineAudio(resp)
	if blob == nil || len(blob.Data) == 0 {
		c.logger.Warn("voice model returned no inline audio", zap.String("model", c.cfg.VoiceModel))
		return Vocal{}, fmt.Errorf("%w: no audio in response", apperrors.ErrVocalSynthesisFailed)
	}

	v := newVocal(blob.Data, blob.MIMEType, c.cfg.VocalFormat, c.cfg.VocalSampleRate)
	c.logger.Info("vocal generated",
		zap.String("voice", voiceName),
		zap.String("mime", v.MIMEType),
		zap.Bool("raw_pcm", v.RawPCM),
		zap.Int("sample_rate", v.SampleRate),
		zap.Int("bytes", len(v.Data)))
	return v, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// inlineAudio returns the first inline data part of the first candidate.
func inlineAudio(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil {
			return p.InlineData
		}
	}
	return nil
}
