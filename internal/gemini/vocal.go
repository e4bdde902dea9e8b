package gemini

import (
	"mime"
	"strconv"
	"strings"

	"github.com/satindergrewal/melodai/internal/audio"
)

// Vocal formats accepted by Config.VocalFormat.
const (
	FormatAuto      = "auto"
	FormatPCM       = "pcm"
	FormatContainer = "container"
)

// Vocal is the voice model's raw answer.
type Vocal struct {
	Data       []byte
	MIMEType   string
	SampleRate int  // meaningful when RawPCM
	RawPCM     bool // headerless s16le mono
}

func newVocal(data []byte, mimeType, format string, defaultRate int) Vocal {
	pcm, rate := ParseAudioMIME(mimeType)
	if rate <= 0 {
		rate = defaultRate
	}
	switch format {
	case FormatPCM:
		pcm = true
	case FormatContainer:
		pcm = false
	default:
		if !pcm && audio.DetectFormat(data) == audio.FormatUnknown && !knownContainer(mimeType) {
			pcm = true
		}
	}
	return Vocal{Data: data, MIMEType: mimeType, SampleRate: rate, RawPCM: pcm}
}

// ParseAudioMIME reports whether mimeType names raw linear PCM and the rate
// it carries, e.g. "audio/L16;codec=pcm;rate=24000" -> (true, 24000).
func ParseAudioMIME(mimeType string) (pcm bool, rate int) {
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false, 0
	}
	switch strings.ToLower(mt) {
	case "audio/l16", "audio/pcm", "audio/raw", "audio/x-raw":
		pcm = true
	}
	if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
		rate = r
	}
	return pcm, rate
}

func knownContainer(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	switch strings.ToLower(mt) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/mpeg", "audio/mp3",
		"audio/ogg", "audio/opus", "audio/flac", "audio/aac", "audio/webm":
		return true
	}
	return false
}
