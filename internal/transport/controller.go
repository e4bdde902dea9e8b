// Package transport owns play/stop across mix sessions. At most one
// session is active; a new play request tears the old one down before
// anything new is built.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/mixer"
)

// ErrSuperseded is returned to a play request whose loads finished after a
// newer request or a stop took over.
var ErrSuperseded = errors.New("play request superseded")

// State is the transport state.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader fetches and decodes the two sources of a track.
type Loader interface {
	LoadVocal(ctx context.Context, trackID string) (*audio.Buffer, error)
	LoadInstrumental(ctx context.Context, trackID string) (*audio.Buffer, error)
}

// Status is a snapshot of the transport.
type Status struct {
	State            State         `json:"-"`
	StateName        string        `json:"state"`
	TrackID          string        `json:"track_id"`
	Position         time.Duration `json:"-"`
	Duration         time.Duration `json:"-"`
	VocalGain        float64       `json:"vocal_gain"`
	InstrumentalGain float64       `json:"instrumental_gain"`
	Degraded         bool          `json:"degraded"`
	LastError        string        `json:"last_error,omitempty"`
}

// Config holds controller defaults.
type Config struct {
	VocalGain        float64
	InstrumentalGain float64
	// OpenOutput runs before every session is built. It must return
	// quickly once the output is open; an error fails the play request.
	OpenOutput func(ctx context.Context) error
}

// Controller is the transport state machine.
type Controller struct {
	engine *mixer.Engine
	output *mixer.Output
	loader Loader
	logger *zap.Logger

	openOutput func(ctx context.Context) error

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped by every play and by stop during loading
	graph     *mixer.Graph
	trackID   string
	degraded  bool
	vocalGain float64
	instGain  float64
	lastErr   string
}

// NewController creates an idle transport.
func NewController(engine *mixer.Engine, output *mixer.Output, loader Loader, cfg Config, logger *zap.Logger) *Controller {
	return &Controller{
		engine:      engine,
		output:      output,
		loader:      loader,
		logger:      logger,
		openOutput: cfg.OpenOutput,
		vocalGain:  mixer.ClampVocalGain(cfg.VocalGain),
		instGain:   mixer.ClampInstrumentalGain(cfg.InstrumentalGain),
	}
}

// Play stops any current session, loads the track's sources and starts a
// new mix. A missing instrumental degrades to vocal-only playback.
func (c *Controller) Play(ctx context.Context, trackID string) error {
	c.mu.Lock()
	c.teardownLocked("superseded")
	c.gen++
	gen := c.gen
	c.state = Loading
	c.trackID = trackID
	c.degraded = false
	c.lastErr = ""
	c.mu.Unlock()

	if c.openOutput != nil {
		if err := c.openOutput(ctx); err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen {
				return ErrSuperseded
			}
			return c.failLocked(apperrors.NewStageError("open_output",
				fmt.Errorf("%w: %v", apperrors.ErrOutputUnavailable, err)))
		}
	}

	c.logger.Info("loading track", zap.String("track", trackID), zap.Uint64("session", gen))
	vocal, inst, loadErr := c.load(ctx, trackID)
	if loadErr == nil {
		// Resampling is the expensive part of building a graph; do it
		// before taking the lock so Status and gain calls are not held up.
		vocal = c.engine.Conform(vocal)
		inst = c.engine.ConformShared(inst)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		c.logger.Debug("discarding stale load", zap.String("track", trackID), zap.Uint64("session", gen))
		return ErrSuperseded
	}
	if loadErr != nil {
		return c.failLocked(loadErr)
	}

	g, err := c.engine.BuildGraph(vocal, inst, c.vocalGain, c.instGain)
	if err != nil {
		return c.failLocked(apperrors.NewStageError("build", err))
	}

	// Both sources start inside this critical section; no suspension
	// point separates them.
	c.output.Attach(g)
	if err := g.Start(); err != nil {
		c.output.Detach(g)
		g.Stop()
		return c.failLocked(apperrors.NewStageError("start", fmt.Errorf("%w: %v", apperrors.ErrPlayback, err)))
	}

	c.graph = g
	c.state = Playing
	c.degraded = inst == nil
	go c.watch(g, gen)

	c.logger.Info("playing",
		zap.String("track", trackID),
		zap.Uint64("session", gen),
		zap.Duration("duration", g.Duration()),
		zap.Bool("degraded", c.degraded))
	return nil
}

// load decodes both sources concurrently. A vocal failure is fatal; an
// instrumental failure degrades to vocal-only when recoverable.
func (c *Controller) load(ctx context.Context, trackID string) (*audio.Buffer, *audio.Buffer, error) {
	var vocal, inst *audio.Buffer

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := c.loader.LoadVocal(egCtx, trackID)
		if err != nil {
			return apperrors.NewStageError("load_vocal", err)
		}
		vocal = b
		return nil
	})
	eg.Go(func() error {
		b, err := c.loader.LoadInstrumental(egCtx, trackID)
		if err != nil {
			se := apperrors.NewStageError("load_instrumental", err)
			if !se.IsRecoverable() {
				return se
			}
			c.logger.Warn("instrumental unavailable, playing vocal only",
				zap.String("track", trackID), zap.Error(err))
			return nil
		}
		inst = b
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return vocal, inst, nil
}

func (c *Controller) failLocked(err error) error {
	c.logger.Error("playback failed", zap.String("track", c.trackID), zap.Error(err))
	c.state = Idle
	c.trackID = ""
	c.lastErr = apperrors.UserMessage(err)
	return err
}

// Stop ends the current session. Stopping while idle is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Idle:
		return nil
	case Loading:
		c.gen++ // orphan the in-flight load
	}
	c.teardownLocked("stop")
	return nil
}

// teardownLocked releases the current graph and returns to Idle.
func (c *Controller) teardownLocked(reason string) {
	if c.state == Idle {
		return
	}
	if g := c.graph; g != nil {
		c.state = Stopping
		c.output.Detach(g)
		g.Stop()
		c.graph = nil
		c.logger.Info("session stopped",
			zap.String("track", c.trackID),
			zap.String("reason", reason),
			zap.Int("live_nodes", c.engine.LiveNodes()))
	}
	c.state = Idle
	c.trackID = ""
}

func (c *Controller) watch(g *mixer.Graph, gen uint64) {
	<-g.Ended()
	c.handleEnded(g, gen)
}

// handleEnded reacts to a graph ending. Notifications from a session that
// is no longer current are dropped.
func (c *Controller) handleEnded(g *mixer.Graph, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.graph != g {
		return
	}
	if g.EndReason() != mixer.EndNatural {
		return
	}
	c.teardownLocked("finished")
}

// SetVocalGain sets the vocal gain for this and future sessions.
func (c *Controller) SetVocalGain(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vocalGain = mixer.ClampVocalGain(v)
	if c.graph != nil {
		c.graph.SetVocalGain(c.vocalGain)
	}
	return c.vocalGain
}

// SetInstrumentalGain sets the instrumental gain for this and future sessions.
func (c *Controller) SetInstrumentalGain(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instGain = mixer.ClampInstrumentalGain(v)
	if c.graph != nil {
		c.graph.SetInstrumentalGain(c.instGain)
	}
	return c.instGain
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the transport.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:            c.state,
		StateName:        c.state.String(),
		TrackID:          c.trackID,
		VocalGain:        c.vocalGain,
		InstrumentalGain: c.instGain,
		Degraded:         c.degraded,
		LastError:        c.lastErr,
	}
	if c.graph != nil {
		s.Position = c.graph.Position()
		s.Duration = c.graph.Duration()
	}
	return s
}
