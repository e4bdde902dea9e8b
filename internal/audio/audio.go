package audio

import "time"

// Output format: every mix is rendered and broadcast in this shape.
const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Vocal format as delivered by the generation collaborator.
const (
	VocalSampleRate = 24000
	VocalChannels   = 1
)

// Buffer is decoded audio: one float32 slice per channel, normalised to [-1, 1).
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length at the buffer's sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Int16 re-interleaves the buffer into clipped 16-bit samples.
func (b *Buffer) Int16() []int16 {
	ch := b.Channels()
	frames := b.Frames()
	out := make([]int16, frames*ch)
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			out[i*ch+c] = FloatToInt16(b.Data[c][i])
		}
	}
	return out
}

// FloatToInt16 scales a normalised sample back to int16, clipping to range.
func FloatToInt16(v float32) int16 {
	s := float64(v) * 32768
	if s > 32767 {
		s = 32767
	} else if s < -32768 {
		s = -32768
	}
	return int16(s)
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}
