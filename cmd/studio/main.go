package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satindergrewal/melodai/internal/backing"
	"github.com/satindergrewal/melodai/internal/config"
	"github.com/satindergrewal/melodai/internal/gemini"
	"github.com/satindergrewal/melodai/internal/ollama"
	"github.com/satindergrewal/melodai/internal/studio"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "AI song studio: write lyrics, sing them, mix over a backing track",
	Long: `studio turns a song idea into lyrics and a sung vocal, then mixes the
vocal over a genre backing track and streams the result.

Configuration comes from the environment (GEMINI_API_KEY, STUDIO_*).`,
	Version:      version,
	SilenceUsage: true,
}

var (
	port int

	genConcept    string
	genGenre      string
	genLyricsFile string
	genOutDir     string
	genRegion     string
	genAge        string
	genStyle      string
	genVoice      string

	encodeRate   int
	encodeBase64 bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(encodeCmd)

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: STUDIO_PORT or 8080)")

	generateCmd.Flags().StringVarP(&genConcept, "concept", "c", "", "Song idea")
	generateCmd.Flags().StringVarP(&genGenre, "genre", "g", "", "Genre (default: the fallback genre)")
	generateCmd.Flags().StringVar(&genLyricsFile, "lyrics-file", "", "Sing these lyrics instead of writing new ones")
	generateCmd.Flags().StringVarP(&genOutDir, "out", "o", ".", "Directory for the WAV file")
	generateCmd.Flags().StringVar(&genRegion, "region", "", "Singer accent region (north, south, ...)")
	generateCmd.Flags().StringVar(&genAge, "age", "", "Singer age (young, mature, ...)")
	generateCmd.Flags().StringVar(&genStyle, "style", "", "Singer style")
	generateCmd.Flags().StringVar(&genVoice, "voice", "", "Prebuilt voice name")

	encodeCmd.Flags().IntVarP(&encodeRate, "rate", "r", 24000, "Sample rate of the raw PCM")
	encodeCmd.Flags().BoolVar(&encodeBase64, "base64", false, "Input is base64 text rather than raw bytes")
}

// newLogger builds the process logger. dev switches to the console encoder.
func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func geminiConfig(cfg config.Config) gemini.Config {
	return gemini.Config{
		APIKey:          cfg.APIKey,
		LyricsModel:     cfg.LyricsModel,
		VoiceModel:      cfg.VoiceModel,
		VoiceName:       cfg.VoiceName,
		VocalFormat:     cfg.VocalFormat,
		VocalSampleRate: cfg.VocalSampleRate,
	}
}

// newStudio wires the generator: Gemini for lyrics and vocals, and the
// local Ollama lyricist in front when it answers.
func newStudio(ctx context.Context, cfg config.Config, src studio.InstrumentalSource, logger *zap.Logger) (*studio.Studio, *backing.Catalog, error) {
	gc, err := gemini.NewClient(ctx, geminiConfig(cfg), logger.Named("gemini"))
	if err != nil {
		return nil, nil, fmt.Errorf("gemini client: %w", err)
	}

	catalog := backing.NewCatalog(cfg.BackingFallback, cfg.BackingURLs)
	st := studio.New(gc, gc, catalog, src, studio.NewLibrary(), logger.Named("studio"))

	if cfg.OllamaURL == "" {
		logger.Info("ollama not configured, lyrics from gemini only (set OLLAMA_URL to enable)")
		return st, catalog, nil
	}
	client := ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel, logger.Named("ollama"))
	readyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if client.WaitForReady(readyCtx, 2*time.Second) {
		st.SetLocalWriter(ollama.NewLyricist(client, logger.Named("ollama")))
		logger.Info("ollama connected, local lyrics enabled", zap.String("model", client.Model()))
	} else {
		logger.Warn("ollama not available, lyrics from gemini only", zap.String("url", cfg.OllamaURL))
	}
	return st, catalog, nil
}
