// Package visualizer turns the broadcast mix into spectrum bars. It only
// observes the broadcast and never changes playback.
package visualizer

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// FFTSize matches a browser AnalyserNode with fftSize 256.
	FFTSize = 256
	// Bins is the number of bars (frequencyBinCount).
	Bins = FFTSize / 2

	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8

	// staleAfter is how long without audio before the analyser counts as idle.
	staleAfter = 250 * time.Millisecond
)

// Frame is one visualizer update. Levels run 0-255 per bin.
type Frame struct {
	Levels []int `json:"levels"`
	Idle   bool  `json:"idle"`
}

// Analyser keeps the latest FFTSize mono samples and computes byte
// frequency data from them.
type Analyser struct {
	channels int
	hann     []float64

	mu       sync.Mutex
	window   []float64 // ring buffer
	pos      int
	lastPush time.Time
	smoothed []float64
}

// NewAnalyser creates an analyser for interleaved frames with the given
// channel count.
func NewAnalyser(channels int) *Analyser {
	if channels < 1 {
		channels = 1
	}
	hann := make([]float64, FFTSize)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(FFTSize))
	}
	return &Analyser{
		channels: channels,
		hann:     hann,
		window:   make([]float64, FFTSize),
		smoothed: make([]float64, Bins),
	}
}

// Push adds one interleaved int16 frame, downmixed to mono.
func (a *Analyser) Push(frame []int16, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+a.channels <= len(frame); i += a.channels {
		var sum float64
		for c := 0; c < a.channels; c++ {
			sum += float64(frame[i+c])
		}
		a.window[a.pos] = sum / float64(a.channels) / 32768
		a.pos = (a.pos + 1) % FFTSize
	}
	a.lastPush = now
}

// Fresh reports whether audio arrived recently.
func (a *Analyser) Fresh(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.lastPush.IsZero() && now.Sub(a.lastPush) < staleAfter
}

// Levels computes smoothed byte frequency data for the current window.
func (a *Analyser) Levels() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	frame := make([]float64, FFTSize)
	for i := 0; i < FFTSize; i++ {
		frame[i] = a.window[(a.pos+i)%FFTSize] * a.hann[i]
	}
	spectrum := fft.FFTReal(frame)

	levels := make([]int, Bins)
	for k := 0; k < Bins; k++ {
		mag := cmplx.Abs(spectrum[k]) / FFTSize
		a.smoothed[k] = smoothing*a.smoothed[k] + (1-smoothing)*mag
		levels[k] = toByte(a.smoothed[k])
	}
	return levels
}

// toByte maps a linear magnitude onto 0-255 across the decibel range.
func toByte(mag float64) int {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return int(v)
	}
}

// IdleLevels is the synthetic animation shown with nothing playing: a slow
// travelling wave.
func IdleLevels(now time.Time) []int {
	t := float64(now.UnixNano()) / float64(time.Second)
	levels := make([]int, Bins)
	for i := range levels {
		phase := t*2 + float64(i)*0.25
		levels[i] = int(40 + 30*math.Sin(phase)*math.Cos(t*0.7+float64(i)*0.05))
	}
	return levels
}
