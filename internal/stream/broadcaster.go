// Package stream fans the studio's rendered mix out to network listeners.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultListenerBuffer is about three seconds of 20ms frames.
const DefaultListenerBuffer = 150

// Kind says who is consuming a listener's frames.
type Kind string

const (
	KindHTTP       Kind = "http"
	KindWebRTC     Kind = "webrtc"
	KindDevice     Kind = "device"
	KindVisualizer Kind = "visualizer"
)

// audience reports whether the kind is a remote person listening.
func (k Kind) audience() bool { return k == KindHTTP || k == KindWebRTC }

// Listener is one subscription to the mix. Frames arrive on C; a full
// buffer means the newest frames are dropped for this listener only.
type Listener struct {
	C    chan []int16
	Kind Kind

	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many frames this listener missed.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

func (l *Listener) offer(frame []int16) bool {
	select {
	case l.C <- frame:
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

// Broadcaster copies every source frame to all listeners. Subscriptions
// are rare and fan-out runs every 20ms, so Run reads an immutable snapshot
// and only Subscribe/Unsubscribe take the lock.
type Broadcaster struct {
	mu       sync.Mutex
	members  []*Listener
	snapshot atomic.Pointer[[]*Listener]

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{}
	b.publish()
	return b
}

// publish swaps in a fresh copy of members. Caller holds mu, except in
// the constructor.
func (b *Broadcaster) publish() {
	snap := make([]*Listener, len(b.members))
	copy(snap, b.members)
	b.snapshot.Store(&snap)
}

// Subscribe registers a listener with the default buffer.
func (b *Broadcaster) Subscribe(kind Kind) *Listener {
	return b.SubscribeBuffered(kind, DefaultListenerBuffer)
}

// SubscribeBuffered registers a listener holding at most size frames.
// Observers that only want the latest audio use a small buffer.
func (b *Broadcaster) SubscribeBuffered(kind Kind, size int) *Listener {
	l := &Listener{
		C:    make(chan []int16, max(size, 1)),
		Kind: kind,
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.members = append(b.members, l)
	b.publish()
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and closes its Done channel. Calling it
// again is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	for i, m := range b.members {
		if m == l {
			b.members = append(b.members[:i:i], b.members[i+1:]...)
			b.publish()
			break
		}
	}
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

// ListenerCount returns how many remote clients (HTTP and WebRTC) are
// tuned in. Local consumers such as the visualizer are not counted.
func (b *Broadcaster) ListenerCount() int {
	n := 0
	for _, l := range *b.snapshot.Load() {
		if l.Kind.audience() {
			n++
		}
	}
	return n
}

// Count returns the number of listeners of one kind.
func (b *Broadcaster) Count(kind Kind) int {
	n := 0
	for _, l := range *b.snapshot.Load() {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

// FramesSent returns how many source frames have been broadcast.
func (b *Broadcaster) FramesSent() uint64 { return b.frames.Load() }

// FramesDropped returns the total of frames missed by slow listeners.
func (b *Broadcaster) FramesDropped() uint64 { return b.dropped.Load() }

// Run fans frames from source out until ctx ends or source closes. A slow
// listener never holds up the others.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		var frame []int16
		var ok bool
		select {
		case <-ctx.Done():
			return
		case frame, ok = <-source:
			if !ok {
				return
			}
		}

		for _, l := range *b.snapshot.Load() {
			if !l.offer(frame) {
				b.dropped.Add(1)
			}
		}
		b.frames.Add(1)
	}
}
