package visualizer

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/stream"
)

// Visualizer taps the broadcast and pushes frames to websocket clients.
type Visualizer struct {
	analyser    *Analyser
	broadcaster *stream.Broadcaster
	playing     func() bool
	logger      *zap.Logger
	interval    time.Duration
	upgrader    websocket.Upgrader
}

// New creates a visualizer. playing reports whether a session is active;
// when it is false the idle animation is shown.
func New(b *stream.Broadcaster, channels int, playing func() bool, logger *zap.Logger) *Visualizer {
	return &Visualizer{
		analyser:    NewAnalyser(channels),
		broadcaster: b,
		playing:     playing,
		logger:      logger,
		interval:    50 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run feeds broadcast audio into the analyser until ctx is cancelled.
func (v *Visualizer) Run(ctx context.Context) {
	l := v.broadcaster.SubscribeBuffered(stream.KindVisualizer, 4)
	defer v.broadcaster.Unsubscribe(l)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame := <-l.C:
			v.analyser.Push(frame, time.Now())
		}
	}
}

// Snapshot returns the frame to draw at now.
func (v *Visualizer) Snapshot(now time.Time) Frame {
	if v.playing == nil || !v.playing() || !v.analyser.Fresh(now) {
		return Frame{Levels: IdleLevels(now), Idle: true}
	}
	return Frame{Levels: v.analyser.Levels()}
}

// ServeHTTP upgrades to a websocket and streams frames as JSON.
func (v *Visualizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client messages so close frames are seen.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	v.logger.Debug("visualizer client connected", zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case now := <-ticker.C:
			_ = conn.SetWriteDeadline(now.Add(time.Second))
			if err := conn.WriteJSON(v.Snapshot(now)); err != nil {
				return
			}
		}
	}
}
