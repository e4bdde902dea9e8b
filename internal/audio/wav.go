package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// WAVHeaderSize is the length of the canonical RIFF/WAVE header.
const WAVHeaderSize = 44

// WAVHeader holds the fields of a canonical 44-byte header.
type WAVHeader struct {
	RIFFSize      uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// EncodeWAV wraps mono 16-bit samples in a canonical WAV container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	return encodeWAV(SamplesToBytes(samples), sampleRate, 1)
}

// EncodePCMBytes wraps raw mono s16le bytes in a canonical WAV container.
func EncodePCMBytes(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not 16-bit aligned", apperrors.ErrMalformedAudioData, len(pcm))
	}
	return encodeWAV(pcm, sampleRate, 1), nil
}

func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	buf := make([]byte, WAVHeaderSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[WAVHeaderSize:], pcm)
	return buf
}

// ParseWAVHeader reads the fixed-layout header written by EncodeWAV.
// Files with extension chunks should go through DecodeWAV instead.
func ParseWAVHeader(data []byte) (WAVHeader, error) {
	if len(data) < WAVHeaderSize {
		return WAVHeader{}, fmt.Errorf("%w: %d bytes is shorter than a WAV header", apperrors.ErrMalformedAudioData, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVHeader{}, fmt.Errorf("%w: missing RIFF/WAVE preamble", apperrors.ErrMalformedAudioData)
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return WAVHeader{}, fmt.Errorf("%w: not a canonical header", apperrors.ErrMalformedAudioData)
	}
	le := binary.LittleEndian
	return WAVHeader{
		RIFFSize:      le.Uint32(data[4:8]),
		AudioFormat:   le.Uint16(data[20:22]),
		Channels:      le.Uint16(data[22:24]),
		SampleRate:    le.Uint32(data[24:28]),
		ByteRate:      le.Uint32(data[28:32]),
		BlockAlign:    le.Uint16(data[32:34]),
		BitsPerSample: le.Uint16(data[34:36]),
		DataSize:      le.Uint32(data[40:44]),
	}, nil
}

// DecodeWAV decodes any integer PCM WAV file into a normalised Buffer.
func DecodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV file", apperrors.ErrMalformedAudioData)
	}
	if dec.WavAudioFormat != 1 && dec.WavAudioFormat != 0xFFFE {
		return nil, fmt.Errorf("%w: unsupported WAV encoding %d", apperrors.ErrMalformedAudioData, dec.WavAudioFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedAudioData, err)
	}

	return fromIntBuffer(pcm, int(dec.BitDepth))
}

// fromIntBuffer normalises interleaved integer PCM to [-1, 1).
func fromIntBuffer(pcm *goaudio.IntBuffer, bitDepth int) (*Buffer, error) {
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: zero channels", apperrors.ErrMalformedAudioData)
	}
	channels := pcm.Format.NumChannels
	if len(pcm.Data)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples not aligned to %d channels", apperrors.ErrMalformedAudioData, len(pcm.Data), channels)
	}

	var scale float32
	switch bitDepth {
	case 8:
		scale = 128
	case 16:
		scale = 32768
	case 24:
		scale = 8388608
	case 32:
		scale = 2147483648
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", apperrors.ErrMalformedAudioData, bitDepth)
	}

	frames := len(pcm.Data) / channels
	buf := NewBuffer(pcm.Format.SampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := pcm.Data[i*channels+c]
			if bitDepth == 8 {
				v -= 128 // 8-bit WAV is unsigned
			}
			buf.Data[c][i] = float32(v) / scale
		}
	}
	return buf, nil
}
