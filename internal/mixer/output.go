package mixer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
)

// Output renders the attached graph at real-time rate and emits 20ms
// interleaved PCM frames. With nothing attached it emits silence so
// downstream encoders keep a steady clock.
type Output struct {
	frameCh      chan []int16
	frameSamples int
	logger       *zap.Logger

	mu    sync.RWMutex
	graph *Graph
}

// NewOutput creates a real-time output pump in the engine's format.
func NewOutput(e *Engine, logger *zap.Logger) *Output {
	perFrame := e.SampleRate() * int(audio.FrameDuration/time.Millisecond) / 1000
	return &Output{
		frameCh:      make(chan []int16, 100),
		frameSamples: perFrame * e.Channels(),
		logger:       logger,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (o *Output) Frames() <-chan []int16 {
	return o.frameCh
}

// Attach makes g the graph rendered from the next frame on.
func (o *Output) Attach(g *Graph) {
	o.mu.Lock()
	o.graph = g
	o.mu.Unlock()
}

// Detach removes g if it is still the attached graph.
func (o *Output) Detach(g *Graph) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.graph != g {
		return false
	}
	o.graph = nil
	return true
}

// Current returns the attached graph, if any.
func (o *Output) Current() *Graph {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.graph
}

// RenderFrame renders one 20ms frame from the attached graph.
func (o *Output) RenderFrame() []int16 {
	frame := make([]int16, o.frameSamples)
	if g := o.Current(); g != nil {
		g.Render(frame)
	}
	return frame
}

// Run starts the pump. Blocks until ctx is cancelled.
func (o *Output) Run(ctx context.Context) {
	defer close(o.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	o.logger.Info("output running", zap.Int("frame_samples", o.frameSamples))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		select {
		case o.frameCh <- o.RenderFrame():
		case <-ctx.Done():
			return
		}
	}
}
