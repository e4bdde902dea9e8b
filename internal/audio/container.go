package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/hajimehoshi/go-mp3"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// Format identifies how an audio payload is packaged.
type Format string

const (
	FormatPCM     Format = "pcm" // headerless s16le
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatUnknown Format = "unknown"
)

// DetectFormat sniffs the container from its leading bytes.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3 // MPEG frame sync
	default:
		return FormatUnknown
	}
}

// DecodeContainer decodes a self-describing audio file. WAV and MP3 are
// decoded in-process; anything else is handed to FFmpeg.
func DecodeContainer(ctx context.Context, data []byte) (*Buffer, error) {
	switch DetectFormat(data) {
	case FormatWAV:
		return DecodeWAV(data)
	case FormatMP3:
		return DecodeMP3(data)
	default:
		return DecodeWithFFmpeg(ctx, data)
	}
}

// DecodeMP3 decodes an MP3 file. go-mp3 always yields 16-bit stereo.
func DecodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", apperrors.ErrMalformedAudioData, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 decode: %v", apperrors.ErrMalformedAudioData, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: mp3 contains no audio", apperrors.ErrMalformedAudioData)
	}
	// Drop a trailing partial frame rather than rejecting the whole file.
	pcm = pcm[:len(pcm)-len(pcm)%4]
	return DecodePCM(pcm, dec.SampleRate(), 2)
}

// DecodeWithFFmpeg pipes any container through FFmpeg and returns
// stereo PCM at the output sample rate.
func DecodeWithFFmpeg(ctx context.Context, data []byte) (*Buffer, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}

	// Ensure frame alignment
	out = out[:len(out)-len(out)%(Channels*2)]
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no audio", apperrors.ErrMalformedAudioData)
	}
	return DecodePCM(out, SampleRate, Channels)
}
