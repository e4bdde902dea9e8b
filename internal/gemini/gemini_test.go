package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/lyrics"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func response(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func testClient(f *fakeModels, cfg Config) *Client {
	return newClient(cfg, f, zap.NewNop())
}

// --- Construction ---

func TestNewClientRequiresKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		_, err := NewClient(context.Background(), Config{APIKey: key}, zap.NewNop())
		if !errors.Is(err, apperrors.ErrConfiguration) {
			t.Errorf("NewClient(%q) error = %v, want ErrConfiguration", key, err)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	c := testClient(&fakeModels{}, Config{})
	if c.cfg.VoiceName != "Kore" || c.cfg.VocalFormat != FormatAuto || c.cfg.VocalSampleRate != 24000 {
		t.Errorf("defaults = %+v", c.cfg)
	}
}

// --- Lyrics ---

func TestGenerateLyrics(t *testing.T) {
	f := &fakeModels{resp: response(&genai.Part{Text: `{"title":"Neon Rain","genre":"EDM","mood":"euphoric","lyrics":"[Verse] go","tempo":128}`})}
	c := testClient(f, Config{LyricsModel: "lyrics-model"})

	song, err := c.GenerateLyrics(context.Background(), "city at night", "EDM", "")
	if err != nil {
		t.Fatalf("GenerateLyrics: %v", err)
	}
	if song.Title != "Neon Rain" || song.Tempo != 128 {
		t.Errorf("song = %+v", song)
	}
	if f.model != "lyrics-model" {
		t.Errorf("model = %q", f.model)
	}
	if f.config.ResponseMIMEType != "application/json" || f.config.ResponseSchema == nil {
		t.Error("lyrics request is not JSON mode with a schema")
	}
	if len(f.config.ResponseSchema.Required) != 5 {
		t.Errorf("schema required = %v", f.config.ResponseSchema.Required)
	}
	if !strings.Contains(f.prompt, "city at night") {
		t.Errorf("prompt = %q", f.prompt)
	}
}

func TestGenerateLyricsCustomOverride(t *testing.T) {
	f := &fakeModels{resp: response(&genai.Part{Text: `{"title":"T","genre":"Pop","mood":"m","lyrics":"model","tempo":100}`})}
	song, err := testClient(f, Config{}).GenerateLyrics(context.Background(), "", "Pop", "mine")
	if err != nil {
		t.Fatalf("GenerateLyrics: %v", err)
	}
	if song.Lyrics != "mine" {
		t.Errorf("Lyrics = %q, want mine", song.Lyrics)
	}
}

func TestGenerateLyricsFailures(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeModels
	}{
		{"transport error", &fakeModels{err: errors.New("quota exceeded")}},
		{"no candidates", &fakeModels{resp: &genai.GenerateContentResponse{}}},
		{"empty text", &fakeModels{resp: response(&genai.Part{Text: ""})}},
		{"bad json", &fakeModels{resp: response(&genai.Part{Text: "{title:"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testClient(tt.f, Config{}).GenerateLyrics(context.Background(), "x", "Pop", "")
			if !errors.Is(err, apperrors.ErrGenerationFailed) {
				t.Errorf("err = %v, want ErrGenerationFailed", err)
			}
		})
	}
}

// --- Vocal ---

func TestGenerateVocal(t *testing.T) {
	pcm := []byte{0x00, 0x01, 0xFF, 0x7F}
	f := &fakeModels{resp: response(
		&genai.Part{Text: "here you go"},
		&genai.Part{InlineData: &genai.Blob{Data: pcm, MIMEType: "audio/L16;codec=pcm;rate=24000"}},
	)}
	c := testClient(f, Config{VoiceModel: "voice-model"})

	v, err := c.GenerateVocal(context.Background(), "la la", "Ballad", lyrics.VoiceSettings{})
	if err != nil {
		t.Fatalf("GenerateVocal: %v", err)
	}
	if !v.RawPCM || v.SampleRate != 24000 || len(v.Data) != 4 {
		t.Errorf("vocal = %+v", v)
	}
	if f.model != "voice-model" {
		t.Errorf("model = %q", f.model)
	}
	if len(f.config.ResponseModalities) != 1 || f.config.ResponseModalities[0] != "AUDIO" {
		t.Errorf("modalities = %v", f.config.ResponseModalities)
	}
	if got := f.config.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("voice = %q, want Kore", got)
	}
}

func TestGenerateVocalRequestedVoice(t *testing.T) {
	f := &fakeModels{resp: response(&genai.Part{InlineData: &genai.Blob{Data: []byte{1, 2}, MIMEType: "audio/pcm"}})}
	_, err := testClient(f, Config{}).GenerateVocal(context.Background(), "x", "Pop", lyrics.VoiceSettings{VoiceName: "Puck"})
	if err != nil {
		t.Fatalf("GenerateVocal: %v", err)
	}
	if got := f.config.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("voice = %q, want Puck", got)
	}
}

func TestGenerateVocalNoAudio(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeModels
	}{
		{"text only", &fakeModels{resp: response(&genai.Part{Text: "I cannot sing"})}},
		{"empty blob", &fakeModels{resp: response(&genai.Part{InlineData: &genai.Blob{MIMEType: "audio/pcm"}})}},
		{"error", &fakeModels{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testClient(tt.f, Config{}).GenerateVocal(context.Background(), "x", "Pop", lyrics.VoiceSettings{})
			if !errors.Is(err, apperrors.ErrVocalSynthesisFailed) {
				t.Errorf("err = %v, want ErrVocalSynthesisFailed", err)
			}
		})
	}
}

// --- Format decisions ---

func TestParseAudioMIME(t *testing.T) {
	tests := []struct {
		mime     string
		wantPCM  bool
		wantRate int
	}{
		{"audio/L16;codec=pcm;rate=24000", true, 24000},
		{"audio/l16; rate=16000", true, 16000},
		{"audio/pcm", true, 0},
		{"audio/wav", false, 0},
		{"audio/mpeg", false, 0},
		{"", false, 0},
		{"audio/L16;rate=abc", true, 0},
	}
	for _, tt := range tests {
		pcm, rate := ParseAudioMIME(tt.mime)
		if pcm != tt.wantPCM || rate != tt.wantRate {
			t.Errorf("ParseAudioMIME(%q) = (%v, %d), want (%v, %d)", tt.mime, pcm, rate, tt.wantPCM, tt.wantRate)
		}
	}
}

func TestNewVocalFormat(t *testing.T) {
	wav := audio.EncodeWAV([]int16{1, 2, 3}, 24000)
	raw := []byte{1, 2, 3, 4}

	tests := []struct {
		name     string
		data     []byte
		mime     string
		format   string
		wantPCM  bool
		wantRate int
	}{
		{"L16 auto", raw, "audio/L16;rate=22050", FormatAuto, true, 22050},
		{"wav auto", wav, "audio/wav", FormatAuto, false, 24000},
		{"unlabelled raw", raw, "", FormatAuto, true, 24000},
		{"unlabelled wav", wav, "", FormatAuto, false, 24000},
		{"forced pcm", wav, "audio/wav", FormatPCM, true, 24000},
		{"forced container", raw, "audio/L16;rate=24000", FormatContainer, false, 24000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVocal(tt.data, tt.mime, tt.format, 24000)
			if v.RawPCM != tt.wantPCM || v.SampleRate != tt.wantRate {
				t.Errorf("vocal = pcm %v rate %d, want pcm %v rate %d", v.RawPCM, v.SampleRate, tt.wantPCM, tt.wantRate)
			}
		})
	}
}
