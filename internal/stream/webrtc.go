package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/melodai/internal/audio"
)

// WebRTCConfig configures the Opus stream.
type WebRTCConfig struct {
	Bitrate    int      // bps
	ICEServers []string // STUN/TURN URLs; empty means host candidates only
}

// DefaultWebRTCConfig returns a 128 kbps stream without ICE servers.
func DefaultWebRTCConfig() WebRTCConfig {
	return WebRTCConfig{Bitrate: 128000}
}

// errBadOffer marks negotiation failures caused by the client's SDP.
var errBadOffer = errors.New("invalid SDP offer")

// peer is one connected browser.
type peer struct {
	id    string
	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample
	done  chan struct{}
	once  sync.Once
}

// WebRTCHandler answers SDP offers and streams the mix to each peer as
// Opus. Signalling is a single POST: the answer is returned only after
// ICE gathering finishes, so no trickle endpoint is needed.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	cfg         WebRTCConfig
	logger      *zap.Logger

	mu    sync.Mutex
	peers map[string]*peer
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, cfg WebRTCConfig, logger *zap.Logger) *WebRTCHandler {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultWebRTCConfig().Bitrate
	}
	return &WebRTCHandler{
		broadcaster: b,
		cfg:         cfg,
		logger:      logger,
		peers:       make(map[string]*peer),
	}
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.hangup(p, "server shutdown")
	}
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, errBadOffer.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.negotiate(r.Context(), offer)
	switch {
	case errors.Is(err, errBadOffer):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		h.logger.Error("webrtc negotiation failed", zap.Error(err))
		http.Error(w, "negotiation failed", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.peers[p.id] = p
	count := len(h.peers)
	h.mu.Unlock()
	h.logger.Info("webrtc peer connected", zap.String("peer", p.id), zap.Int("peers", count))

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.hangup(p, s.String())
		}
	})
	go h.send(p)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.pc.LocalDescription())
}

// negotiate builds a peer connection with one Opus track and answers the
// offer. The connection is closed on any error.
func (h *WebRTCHandler) negotiate(ctx context.Context, offer webrtc.SessionDescription) (p *peer, err error) {
	var ice []webrtc.ICEServer
	if len(h.cfg.ICEServers) > 0 {
		ice = []webrtc.ICEServer{{URLs: h.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: ice})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	defer func() {
		if err != nil {
			pc.Close()
		}
	}()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"mix",
		"melodai",
	)
	if err != nil {
		return nil, fmt.Errorf("opus track: %w", err)
	}
	if _, err = pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	if err = pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadOffer, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &peer{id: uuid.NewString(), pc: pc, track: track, done: make(chan struct{})}, nil
}

// send encodes broadcast frames for one peer until it hangs up.
func (h *WebRTCHandler) send(p *peer) {
	l := h.broadcaster.Subscribe(KindWebRTC)
	defer h.broadcaster.Unsubscribe(l)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.logger.Error("opus encoder", zap.Error(err))
		h.hangup(p, "encoder unavailable")
		return
	}
	if err := enc.SetBitrate(h.cfg.Bitrate); err != nil {
		h.logger.Warn("opus bitrate rejected", zap.Int("bps", h.cfg.Bitrate), zap.Error(err))
	}

	packet := make([]byte, 4000)
	for {
		select {
		case <-p.done:
			return
		case <-l.Done():
			return
		case frame := <-l.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				h.logger.Warn("opus encode", zap.String("peer", p.id), zap.Error(err))
				continue
			}
			if err := p.track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				h.hangup(p, "write failed")
				return
			}
		}
	}
}

// hangup removes the peer and closes its connection once.
func (h *WebRTCHandler) hangup(p *peer, reason string) {
	p.once.Do(func() {
		h.mu.Lock()
		delete(h.peers, p.id)
		count := len(h.peers)
		h.mu.Unlock()

		close(p.done)
		p.pc.Close()
		h.logger.Info("webrtc peer disconnected",
			zap.String("peer", p.id), zap.String("reason", reason), zap.Int("peers", count))
	})
}
