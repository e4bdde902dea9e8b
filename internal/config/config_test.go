package config

import (
	"os"
	"testing"
	"time"
)

var allKeys = []string{
	"GEMINI_API_KEY", "API_KEY", "STUDIO_LYRICS_MODEL", "STUDIO_VOICE_MODEL",
	"STUDIO_VOICE_NAME", "STUDIO_VOCAL_FORMAT", "STUDIO_VOCAL_SAMPLE_RATE",
	"OLLAMA_URL", "OLLAMA_MODEL", "STUDIO_PORT", "STUDIO_VOCAL_GAIN",
	"STUDIO_INSTRUMENTAL_GAIN", "STUDIO_COMPRESSOR", "STUDIO_BACKING_FALLBACK",
	"STUDIO_BACKING_URLS", "STUDIO_FETCH_TIMEOUT", "STUDIO_LOCAL_OUTPUT",
	"STUDIO_LOG_LEVEL", "STUDIO_LOG_DEV", "STUDIO_STREAM_NAME",
	"STUDIO_MP3_BITRATE", "STUDIO_OPUS_BITRATE", "STUDIO_ICE_SERVERS",
}

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty default", cfg.APIKey)
	}
	if cfg.VoiceName != "Kore" {
		t.Errorf("VoiceName = %q, want Kore", cfg.VoiceName)
	}
	if cfg.VocalFormat != "auto" {
		t.Errorf("VocalFormat = %q, want auto", cfg.VocalFormat)
	}
	if cfg.VocalSampleRate != 24000 {
		t.Errorf("VocalSampleRate = %d, want 24000", cfg.VocalSampleRate)
	}
	if cfg.OllamaURL != "" {
		t.Errorf("OllamaURL = %q, want empty", cfg.OllamaURL)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.VocalGain != 1.0 {
		t.Errorf("VocalGain = %f, want 1.0", cfg.VocalGain)
	}
	if cfg.InstrumentalGain != 0.4 {
		t.Errorf("InstrumentalGain = %f, want 0.4", cfg.InstrumentalGain)
	}
	if !cfg.Compressor {
		t.Error("Compressor = false, want true")
	}
	if cfg.BackingFallback != "Pop" {
		t.Errorf("BackingFallback = %q, want Pop", cfg.BackingFallback)
	}
	if cfg.BackingURLs != nil {
		t.Errorf("BackingURLs = %v, want nil", cfg.BackingURLs)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", cfg.FetchTimeout)
	}
	if cfg.LocalOutput {
		t.Error("LocalOutput = true, want false")
	}
	if cfg.MP3Bitrate != 192 || cfg.OpusBitrate != 128000 {
		t.Errorf("bitrates = %d/%d, want 192/128000", cfg.MP3Bitrate, cfg.OpusBitrate)
	}
	if cfg.ICEServers != nil {
		t.Errorf("ICEServers = %v, want nil", cfg.ICEServers)
	}
	if cfg.LogLevel != "info" || cfg.LogDev {
		t.Errorf("log = %q/%v, want info/false", cfg.LogLevel, cfg.LogDev)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key-123")
	t.Setenv("STUDIO_VOICE_NAME", "Puck")
	t.Setenv("STUDIO_VOCAL_FORMAT", "PCM")
	t.Setenv("STUDIO_VOCAL_SAMPLE_RATE", "16000")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	t.Setenv("STUDIO_PORT", "3000")
	t.Setenv("STUDIO_VOCAL_GAIN", "1.2")
	t.Setenv("STUDIO_INSTRUMENTAL_GAIN", "0.25")
	t.Setenv("STUDIO_COMPRESSOR", "false")
	t.Setenv("STUDIO_BACKING_FALLBACK", "Lofi")
	t.Setenv("STUDIO_BACKING_URLS", "Rock=http://x/rock.mp3, Jazz = http://x/jazz.wav")
	t.Setenv("STUDIO_FETCH_TIMEOUT", "45s")
	t.Setenv("STUDIO_LOCAL_OUTPUT", "1")
	t.Setenv("STUDIO_LOG_DEV", "true")
	t.Setenv("STUDIO_ICE_SERVERS", "stun:stun.l.google.com:19302, ,turn:turn.example.com")

	cfg := Load()

	if cfg.APIKey != "test-key-123" {
		t.Errorf("APIKey = %q, want env override", cfg.APIKey)
	}
	if cfg.VoiceName != "Puck" {
		t.Errorf("VoiceName = %q, want Puck", cfg.VoiceName)
	}
	if cfg.VocalFormat != "pcm" {
		t.Errorf("VocalFormat = %q, want pcm", cfg.VocalFormat)
	}
	if cfg.VocalSampleRate != 16000 {
		t.Errorf("VocalSampleRate = %d, want 16000", cfg.VocalSampleRate)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("OllamaURL = %q", cfg.OllamaURL)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.VocalGain != 1.2 || cfg.InstrumentalGain != 0.25 {
		t.Errorf("gains = %f/%f, want 1.2/0.25", cfg.VocalGain, cfg.InstrumentalGain)
	}
	if cfg.Compressor {
		t.Error("Compressor = true, want false")
	}
	if cfg.BackingFallback != "Lofi" {
		t.Errorf("BackingFallback = %q, want Lofi", cfg.BackingFallback)
	}
	if len(cfg.BackingURLs) != 2 || cfg.BackingURLs["Jazz"] != "http://x/jazz.wav" {
		t.Errorf("BackingURLs = %v", cfg.BackingURLs)
	}
	if cfg.FetchTimeout != 45*time.Second {
		t.Errorf("FetchTimeout = %v, want 45s", cfg.FetchTimeout)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1] != "turn:turn.example.com" {
		t.Errorf("ICEServers = %v", cfg.ICEServers)
	}
	if !cfg.LocalOutput || !cfg.LogDev {
		t.Errorf("LocalOutput/LogDev = %v/%v, want true/true", cfg.LocalOutput, cfg.LogDev)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "legacy")
	if got := Load().APIKey; got != "legacy" {
		t.Errorf("APIKey = %q, want legacy fallback", got)
	}
	t.Setenv("GEMINI_API_KEY", "primary")
	if got := Load().APIKey; got != "primary" {
		t.Errorf("APIKey = %q, want primary", got)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("STUDIO_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"12", 12 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("STUDIO_FETCH_TIMEOUT", tt.in)
		if got := envDuration("STUDIO_FETCH_TIMEOUT", 30*time.Second); got != tt.want {
			t.Errorf("envDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEnvChoiceRejectsUnknown(t *testing.T) {
	t.Setenv("STUDIO_VOCAL_FORMAT", "flac")
	if got := Load().VocalFormat; got != "auto" {
		t.Errorf("VocalFormat = %q, want auto", got)
	}
}

func TestEnvMapSkipsMalformed(t *testing.T) {
	t.Setenv("STUDIO_BACKING_URLS", "Pop=http://a,broken,=http://b,Rock=")
	m := envMap("STUDIO_BACKING_URLS")
	if len(m) != 1 || m["Pop"] != "http://a" {
		t.Errorf("envMap = %v, want only Pop", m)
	}
}
