package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
	"github.com/satindergrewal/melodai/internal/config"
	"github.com/satindergrewal/melodai/internal/lyrics"
	"github.com/satindergrewal/melodai/internal/studio"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one song and save the vocal as WAV",
	Long: `Write lyrics for a concept (or take them from a file), sing them and
save the vocal as <title>.wav.

Examples:
  studio generate --concept "last train home" --genre Lofi
  studio generate --lyrics-file song.txt --genre Ballad --region south -o out/`,
	RunE: runGenerate,
}

var encodeCmd = &cobra.Command{
	Use:   "encode <input.pcm> <output.wav>",
	Short: "Wrap raw 16-bit mono PCM in a WAV container",
	Long: `Wrap raw little-endian 16-bit mono PCM, as returned by the voice model,
in a WAV header.

Examples:
  studio encode vocal.pcm vocal.wav
  studio encode --base64 --rate 24000 vocal.b64 vocal.wav`,
	Args: cobra.ExactArgs(2),
	RunE: runEncode,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	req := studio.Request{
		Concept: genConcept,
		Genre:   genGenre,
		Voice: lyrics.VoiceSettings{
			Region:      genRegion,
			Age:         genAge,
			SingerStyle: genStyle,
			VoiceName:   genVoice,
		},
	}
	if genLyricsFile != "" {
		data, err := os.ReadFile(genLyricsFile)
		if err != nil {
			return fmt.Errorf("read lyrics: %w", err)
		}
		req.CustomLyrics = string(data)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	// No backing source: the one-shot command only saves the vocal.
	st, _, err := newStudio(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}

	track, err := st.Generate(ctx, req)
	if err != nil {
		return err
	}

	path, err := saveTrack(genOutDir, track)
	if err != nil {
		return err
	}
	logger.Info("saved", zap.String("title", track.Title), zap.String("path", path))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// saveTrack writes the track's vocal to dir/<title>.wav.
func saveTrack(dir string, track *studio.Track) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, track.FileName()+".wav")
	if err := os.WriteFile(path, track.VocalWAV(), 0o644); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}
	return path, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	in, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	wav, err := encodePCM(in, encodeRate, encodeBase64)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], wav, 0o644); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}

	hdr, err := audio.ParseWAVHeader(wav)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d Hz, %.2fs\n",
		args[1], hdr.SampleRate, float64(hdr.DataSize)/float64(hdr.ByteRate))
	return nil
}

// encodePCM turns raw or base64 mono s16le into a WAV file.
func encodePCM(in []byte, rate int, isBase64 bool) ([]byte, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	if !isBase64 {
		return audio.EncodePCMBytes(in, rate)
	}
	buf, err := audio.DecodePCMBase64(strings.TrimSpace(string(in)), rate, 1)
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(buf.Int16(), rate), nil
}
