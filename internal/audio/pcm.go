package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// DecodePCM converts raw signed 16-bit little-endian samples into a
// normalised, de-interleaved Buffer. A sampleRate or channels of zero
// selects the collaborator defaults (24kHz mono).
func DecodePCM(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		sampleRate = VocalSampleRate
	}
	if channels <= 0 {
		channels = VocalChannels
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not 16-bit aligned", apperrors.ErrMalformedAudioData, len(data))
	}
	if len(data)%(channels*2) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not aligned to %d channels", apperrors.ErrMalformedAudioData, len(data), channels)
	}

	frames := len(data) / (channels * 2)
	buf := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			buf.Data[c][i] = float32(s) / 32768
		}
	}
	return buf, nil
}

// DecodePCMBase64 decodes base64 text carrying raw PCM, then DecodePCM.
func DecodePCMBase64(text string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", apperrors.ErrMalformedAudioData, err)
	}
	return DecodePCM(raw, sampleRate, channels)
}

// BytesToSamples reinterprets little-endian bytes as int16 samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not 16-bit aligned", apperrors.ErrMalformedAudioData, len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
