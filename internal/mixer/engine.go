package mixer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// Config sets the engine's render format.
type Config struct {
	SampleRate int
	Channels   int
	Compressor *CompressorParams // nil bypasses the dynamics stage
}

// DefaultConfig renders at the broadcast format with the default compressor.
func DefaultConfig() Config {
	c := DefaultCompressor()
	return Config{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Compressor: &c,
	}
}

// maxShared bounds the conformed-buffer cache. Backing tracks come from a
// small genre table, so a handful of entries covers normal use.
const maxShared = 16

// Engine builds mix graphs and tracks how many source nodes are alive.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	nextID atomic.Uint64
	live   atomic.Int64

	sharedMu sync.Mutex
	shared   map[*audio.Buffer]*audio.Buffer
}

// NewEngine creates an engine. Zero format fields fall back to the
// broadcast format.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = audio.Channels
	}
	return &Engine{cfg: cfg, logger: logger, shared: make(map[*audio.Buffer]*audio.Buffer)}
}

// Conform converts b to the render format. A buffer already in that format
// is returned as is, so BuildGraph does no further work on it.
func (e *Engine) Conform(b *audio.Buffer) *audio.Buffer {
	if b == nil {
		return nil
	}
	return audio.Conform(b, e.cfg.SampleRate, e.cfg.Channels)
}

// ConformShared is Conform for read-only buffers reused across sessions,
// such as cached backing tracks. Results are remembered per source buffer.
func (e *Engine) ConformShared(b *audio.Buffer) *audio.Buffer {
	if b == nil {
		return nil
	}
	e.sharedMu.Lock()
	out, ok := e.shared[b]
	e.sharedMu.Unlock()
	if ok {
		return out
	}

	out = e.Conform(b)

	e.sharedMu.Lock()
	if len(e.shared) >= maxShared {
		clear(e.shared)
	}
	e.shared[b] = out
	e.sharedMu.Unlock()
	return out
}

// SampleRate returns the render rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Channels returns the render channel count.
func (e *Engine) Channels() int { return e.cfg.Channels }

// LiveNodes returns the number of source nodes built and not yet released.
func (e *Engine) LiveNodes() int { return int(e.live.Load()) }

func (e *Engine) release(n int) {
	if n > 0 {
		e.live.Add(int64(-n))
	}
}

// BuildGraph wires vocal -> gain and instrumental -> gain into the shared
// dynamics stage. A nil instrumental builds a vocal-only graph.
func (e *Engine) BuildGraph(vocal, instrumental *audio.Buffer, vocalGain, instrumentalGain float64) (*Graph, error) {
	if vocal == nil || vocal.Frames() == 0 {
		return nil, fmt.Errorf("%w: empty vocal buffer", apperrors.ErrPlayback)
	}

	g := &Graph{
		id:               e.nextID.Add(1),
		engine:           e,
		channels:         e.cfg.Channels,
		rate:             e.cfg.SampleRate,
		vocalGain:        newParam(vocalGain, 0, VocalGainMax),
		instrumentalGain: newParam(instrumentalGain, 0, InstrumentalGainMax),
		ended:            make(chan struct{}),
	}

	v := audio.Conform(vocal, e.cfg.SampleRate, e.cfg.Channels)
	g.vocal = newSourceNode(v, false)
	g.vocalFrames = v.Frames()
	nodes := 1

	if instrumental != nil && instrumental.Frames() > 0 {
		g.instrumental = newSourceNode(audio.Conform(instrumental, e.cfg.SampleRate, e.cfg.Channels), true)
		nodes++
	} else {
		e.logger.Warn("building vocal-only graph", zap.Uint64("graph", g.id))
	}

	if e.cfg.Compressor != nil {
		g.comp = newCompressor(*e.cfg.Compressor, e.cfg.SampleRate)
	}

	e.live.Add(int64(nodes))
	e.logger.Debug("graph built",
		zap.Uint64("graph", g.id),
		zap.Duration("vocal", g.Duration()),
		zap.Bool("instrumental", g.instrumental != nil),
		zap.Int("live_nodes", e.LiveNodes()))
	return g, nil
}
