package mixer

import (
	"fmt"
	"sync"
	"time"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

type graphState int

const (
	graphBuilt graphState = iota
	graphPlaying
	graphStopped
)

// EndReason says why a graph stopped producing audio.
type EndReason int

const (
	EndNone    EndReason = iota
	EndNatural           // vocal reached its end
	EndStopped           // Stop was called
)

func (r EndReason) String() string {
	switch r {
	case EndNatural:
		return "natural"
	case EndStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Graph is one mix session: a play-once vocal and an optional looping
// instrumental, each through its own gain, into an optional compressor.
// It is the handle passed to every mix operation.
type Graph struct {
	id       uint64
	engine   *Engine
	channels int
	rate     int

	vocalGain        *Param
	instrumentalGain *Param

	mu           sync.Mutex
	state        graphState
	reason       EndReason
	vocal        *sourceNode
	instrumental *sourceNode
	comp         *compressor
	lastVocal    float64
	lastInst     float64
	rendered     int
	vocalFrames  int
	scratch      [][]float32
	frame        []float32
	ended        chan struct{}
}

// HasInstrumental reports whether the backing path exists.
func (g *Graph) HasInstrumental() bool { return g.instrumental != nil }

// SetVocalGain sets the live vocal gain, clamped to [0, 1.5].
func (g *Graph) SetVocalGain(v float64) float64 { return g.vocalGain.Set(v) }

// SetInstrumentalGain sets the live instrumental gain, clamped to [0, 1].
func (g *Graph) SetInstrumentalGain(v float64) float64 { return g.instrumentalGain.Set(v) }

// VocalGain returns the current vocal gain target.
func (g *Graph) VocalGain() float64 { return g.vocalGain.Value() }

// InstrumentalGain returns the current instrumental gain target.
func (g *Graph) InstrumentalGain() float64 { return g.instrumentalGain.Value() }

// Ended is closed once the graph stops, naturally or by Stop.
func (g *Graph) Ended() <-chan struct{} { return g.ended }

// EndReason reports why the graph ended, or EndNone while it runs.
func (g *Graph) EndReason() EndReason {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// Playing reports whether the graph is started and not yet ended.
func (g *Graph) Playing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == graphPlaying
}

// Passes returns how many full passes the instrumental has completed.
func (g *Graph) Passes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.instrumental == nil {
		return 0
	}
	return g.instrumental.passes
}

// Position returns how much of the vocal has been rendered.
func (g *Graph) Position() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(g.rendered) * time.Second / time.Duration(g.rate)
}

// Duration returns the vocal length, which is the session length.
func (g *Graph) Duration() time.Duration {
	return time.Duration(g.vocalFrames) * time.Second / time.Duration(g.rate)
}

// Start begins both sources at the same frame. The vocal plays once and
// the instrumental loops until the vocal ends.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case graphPlaying:
		return nil
	case graphStopped:
		return fmt.Errorf("%w: graph %d already stopped", apperrors.ErrPlayback, g.id)
	}

	g.vocal.pos, g.vocal.playing = 0, true
	if g.instrumental != nil {
		g.instrumental.pos, g.instrumental.playing = 0, true
	}
	g.lastVocal = g.vocalGain.Value()
	g.lastInst = g.instrumentalGain.Value()
	g.state = graphPlaying
	return nil
}

// Stop halts and releases both sources. Stopping twice is a no-op.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endLocked(EndStopped)
}

func (g *Graph) endLocked(reason EndReason) {
	if g.state == graphStopped {
		return
	}
	g.state = graphStopped
	g.reason = reason

	released := 0
	for _, n := range []*sourceNode{g.vocal, g.instrumental} {
		if n == nil || n.released {
			continue
		}
		n.playing = false
		n.released = true
		released++
	}
	g.engine.release(released)
	close(g.ended)
}

// Render fills dst with interleaved int16 frames. It returns the number of
// frames that carried vocal audio; the remainder of dst is silence.
func (g *Graph) Render(dst []int16) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	frames := len(dst) / g.channels
	if g.state != graphPlaying || frames == 0 {
		clear(dst)
		return 0
	}

	g.ensureScratch(frames)
	for _, ch := range g.scratch {
		clear(ch[:frames])
	}
	scratch := g.scratch
	for c := range scratch {
		scratch[c] = scratch[c][:frames]
	}

	vFrom, vTo := g.lastVocal, g.vocalGain.Value()
	n := g.vocal.read(scratch, frames, func(i int) float32 {
		return float32(audio.Ramp(vFrom, vTo, i, frames))
	})
	g.lastVocal = vTo

	if g.instrumental != nil && n > 0 {
		mFrom, mTo := g.lastInst, g.instrumentalGain.Value()
		g.instrumental.read(scratch, n, func(i int) float32 {
			return float32(audio.Ramp(mFrom, mTo, i, frames))
		})
		g.lastInst = mTo
	}

	frame := g.frame[:g.channels]
	for i := 0; i < frames; i++ {
		for c := 0; c < g.channels; c++ {
			frame[c] = scratch[c][i]
		}
		if g.comp != nil && i < n {
			g.comp.process(frame)
		}
		for c := 0; c < g.channels; c++ {
			dst[i*g.channels+c] = audio.FloatToInt16(frame[c])
		}
	}
	g.rendered += n

	if !g.vocal.playing {
		// The instrumental follows the vocal out.
		g.endLocked(EndNatural)
	}
	return n
}

func (g *Graph) ensureScratch(frames int) {
	if len(g.scratch) == g.channels && cap(g.scratch[0]) >= frames {
		return
	}
	g.scratch = make([][]float32, g.channels)
	for c := range g.scratch {
		g.scratch[c] = make([]float32, frames)
	}
	g.frame = make([]float32, g.channels)
}
