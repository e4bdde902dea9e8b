package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Gemini
	APIKey          string
	LyricsModel     string
	VoiceModel      string
	VoiceName       string // prebuilt voice used when a request names none
	VocalFormat     string // auto, pcm or container
	VocalSampleRate int    // assumed rate for raw PCM without a rate in its MIME type

	// Optional local lyric writer
	OllamaURL   string
	OllamaModel string

	// Server
	Port int

	// Mix
	VocalGain        float64
	InstrumentalGain float64
	Compressor       bool

	// Backing tracks
	BackingFallback string
	BackingURLs     map[string]string // genre -> URL overrides
	FetchTimeout    time.Duration

	// Streams
	StreamName  string
	MP3Bitrate  int      // kbps
	OpusBitrate int      // bps
	ICEServers  []string // STUN/TURN URLs for WebRTC peers

	// Play through the local sound card as well as the network streams
	LocalOutput bool

	// Logging
	LogLevel string
	LogDev   bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		APIKey:          envStr("GEMINI_API_KEY", os.Getenv("API_KEY")),
		LyricsModel:     envStr("STUDIO_LYRICS_MODEL", "gemini-2.5-flash"),
		VoiceModel:      envStr("STUDIO_VOICE_MODEL", "gemini-2.5-flash-preview-tts"),
		VoiceName:       envStr("STUDIO_VOICE_NAME", "Kore"),
		VocalFormat:     envChoice("STUDIO_VOCAL_FORMAT", "auto", "auto", "pcm", "container"),
		VocalSampleRate: envInt("STUDIO_VOCAL_SAMPLE_RATE", 24000),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "llama3.2"),

		Port: envInt("STUDIO_PORT", 8080),

		VocalGain:        envFloat("STUDIO_VOCAL_GAIN", 1.0),
		InstrumentalGain: envFloat("STUDIO_INSTRUMENTAL_GAIN", 0.4),
		Compressor:       envBool("STUDIO_COMPRESSOR", true),

		BackingFallback: envStr("STUDIO_BACKING_FALLBACK", "Pop"),
		BackingURLs:     envMap("STUDIO_BACKING_URLS"),
		FetchTimeout:    envDuration("STUDIO_FETCH_TIMEOUT", 30*time.Second),

		StreamName:  envStr("STUDIO_STREAM_NAME", "melodai studio"),
		MP3Bitrate:  envInt("STUDIO_MP3_BITRATE", 192),
		OpusBitrate: envInt("STUDIO_OPUS_BITRATE", 128000),
		ICEServers:  envList("STUDIO_ICE_SERVERS"),

		LocalOutput: envBool("STUDIO_LOCAL_OUTPUT", false),

		LogLevel: envStr("STUDIO_LOG_LEVEL", "info"),
		LogDev:   envBool("STUDIO_LOG_DEV", false),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envChoice(key, fallback string, allowed ...string) string {
	v := strings.ToLower(os.Getenv(key))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

// envMap parses "k1=v1,k2=v2". Malformed pairs are skipped.
func envMap(key string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	return out
}

// envList parses a comma-separated list, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
