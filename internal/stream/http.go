package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
)

// HTTPConfig configures the MP3 stream.
type HTTPConfig struct {
	Name    string // advertised as ICY-Name
	Bitrate int    // kbps
	FFmpeg  string // encoder binary
}

// DefaultHTTPConfig returns a 192 kbps stream encoded by ffmpeg on PATH.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{Name: "melodai studio", Bitrate: 192, FFmpeg: "ffmpeg"}
}

// HTTPHandler serves the mix as an endless MP3 body. Every client gets its
// own encoder process fed from its own broadcaster listener.
type HTTPHandler struct {
	broadcaster *Broadcaster
	cfg         HTTPConfig
	logger      *zap.Logger
}

// NewHTTPHandler creates an MP3 stream handler. Zero fields in cfg take
// their defaults.
func NewHTTPHandler(b *Broadcaster, cfg HTTPConfig, logger *zap.Logger) *HTTPHandler {
	def := DefaultHTTPConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = def.Bitrate
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = def.FFmpeg
	}
	return &HTTPHandler{broadcaster: b, cfg: cfg, logger: logger}
}

// mp3EncoderArgs builds the ffmpeg arguments for s16le stdin to MP3 stdout.
func mp3EncoderArgs(sampleRate, channels, kbps int) []string {
	return []string{
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(kbps) + "k",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-f", "mp3",
		"pipe:1",
	}
}

// encoder is one running ffmpeg process.
type encoder struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out io.ReadCloser
}

func startEncoder(ctx context.Context, cfg HTTPConfig) (*encoder, error) {
	cmd := exec.CommandContext(ctx, cfg.FFmpeg, mp3EncoderArgs(audio.SampleRate, audio.Channels, cfg.Bitrate)...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.FFmpeg, err)
	}
	return &encoder{cmd: cmd, in: in, out: out}, nil
}

// pump writes the listener's frames to w as raw PCM until the listener is
// released, ctx ends or a write fails. It closes w on return.
func pump(ctx context.Context, l *Listener, w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame := <-l.C:
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}

// flushWriter flushes after every write so MP3 chunks leave immediately.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	enc, err := startEncoder(ctx, h.cfg)
	if err != nil {
		h.logger.Error("mp3 encoder unavailable", zap.Error(err))
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "audio/mpeg")
	hdr.Set("Cache-Control", "no-cache, no-store")
	hdr.Set("Connection", "close")
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("ICY-Name", h.cfg.Name)
	hdr.Set("ICY-Br", strconv.Itoa(h.cfg.Bitrate))

	l := h.broadcaster.Subscribe(KindHTTP)
	defer h.broadcaster.Unsubscribe(l)

	started := time.Now()
	h.logger.Info("http listener connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("listeners", h.broadcaster.ListenerCount()))

	go pump(ctx, l, enc.in)

	sent, err := io.Copy(flushWriter{w: w, f: flusher}, enc.out)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("http stream ended", zap.Error(err))
	}

	cancel()
	enc.cmd.Wait()

	h.logger.Info("http listener disconnected",
		zap.String("remote", r.RemoteAddr),
		zap.Int64("bytes", sent),
		zap.Duration("connected", time.Since(started)),
		zap.Uint64("dropped_frames", l.Dropped()))
}
