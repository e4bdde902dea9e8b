// Package device plays the broadcast mix on the local sound card.
package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
	"github.com/satindergrewal/melodai/internal/stream"
)

// readyTimeout bounds how long Activate waits for the driver.
const readyTimeout = 5 * time.Second

// contextFunc creates the oto context; replaced in tests.
type contextFunc func() (*oto.Context, chan struct{}, error)

func newOtoContext() (*oto.Context, chan struct{}, error) {
	return oto.NewContext(audio.SampleRate, audio.Channels, oto.FormatSignedInt16LE)
}

// Output is the shared local output. The sound card is opened on first
// use, not at startup.
type Output struct {
	broadcaster *stream.Broadcaster
	logger      *zap.Logger
	newContext  contextFunc

	// openMu serialises Activate. oto allows one context per process, so
	// a context is kept once created and a creation error is final.
	openMu  sync.Mutex
	otoCtx  *oto.Context
	ready   chan struct{}
	openErr error

	mu       sync.Mutex
	player   oto.Player
	listener *stream.Listener
}

// New creates an unopened output fed from b.
func New(b *stream.Broadcaster, logger *zap.Logger) *Output {
	return &Output{broadcaster: b, logger: logger, newContext: newOtoContext}
}

// Activate opens the sound card and starts playback. It returns nil at
// once when already playing; after a failure the next call tries again.
func (o *Output) Activate(ctx context.Context) error {
	if o.Active() {
		return nil
	}
	o.openMu.Lock()
	defer o.openMu.Unlock()
	if o.Active() {
		return nil
	}
	if err := o.open(ctx); err != nil {
		o.logger.Error("local output unavailable", zap.Error(err))
		return err
	}
	return nil
}

func (o *Output) open(ctx context.Context) error {
	if o.otoCtx == nil {
		if o.openErr != nil {
			return o.openErr
		}
		otoCtx, ready, err := o.newContext()
		if err != nil {
			o.openErr = fmt.Errorf("open audio device: %w", err)
			return o.openErr
		}
		o.otoCtx, o.ready = otoCtx, ready
	}

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case <-o.ready:
	case <-timer.C:
		return fmt.Errorf("open audio device: driver not ready after %v", readyTimeout)
	case <-ctx.Done():
		return fmt.Errorf("open audio device: %w", ctx.Err())
	}

	l := o.broadcaster.Subscribe(stream.KindDevice)
	p := o.otoCtx.NewPlayer(newFrameReader(l))
	p.Play()

	o.mu.Lock()
	o.player, o.listener = p, l
	o.mu.Unlock()

	o.logger.Info("local output active",
		zap.Int("sample_rate", audio.SampleRate), zap.Int("channels", audio.Channels))
	return nil
}

// Active reports whether the sound card is playing.
func (o *Output) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player != nil
}

// Close stops playback and releases the listener.
func (o *Output) Close() error {
	o.mu.Lock()
	p, l := o.player, o.listener
	o.player, o.listener = nil, nil
	o.mu.Unlock()

	if l != nil {
		o.broadcaster.Unsubscribe(l)
	}
	if p != nil {
		return p.Close()
	}
	return nil
}

// frameReader adapts a broadcaster listener to the io.Reader oto pulls
// from. Read blocks until a frame arrives.
type frameReader struct {
	l       *stream.Listener
	pending []byte
}

func newFrameReader(l *stream.Listener) *frameReader {
	return &frameReader{l: l}
}

func (r *frameReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		select {
		case <-r.l.Done():
			return 0, io.EOF
		case frame, ok := <-r.l.C:
			if !ok {
				return 0, io.EOF
			}
			r.pending = audio.SamplesToBytes(frame)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
