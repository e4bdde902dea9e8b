package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/melodai/internal/audio"
	"github.com/satindergrewal/melodai/internal/backing"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/gemini"
	"github.com/satindergrewal/melodai/internal/lyrics"
)

// logLines is how many progress lines are kept.
const logLines = 5

// Step is the generation progress.
type Step int

const (
	StepIdle Step = iota
	StepWritingLyrics
	StepGeneratingAudio
	StepCompleting
)

func (s Step) String() string {
	switch s {
	case StepWritingLyrics:
		return "WRITING_LYRICS"
	case StepGeneratingAudio:
		return "GENERATING_AUDIO"
	case StepCompleting:
		return "COMPLETING"
	default:
		return "IDLE"
	}
}

// VocalSynth sings lyrics.
type VocalSynth interface {
	GenerateVocal(ctx context.Context, text, genre string, voice lyrics.VoiceSettings) (gemini.Vocal, error)
}

// InstrumentalSource fetches a decoded backing track.
type InstrumentalSource interface {
	Fetch(ctx context.Context, url string) (*audio.Buffer, error)
}

// Request is one song to generate.
type Request struct {
	Concept      string               `json:"concept"`
	Genre        string               `json:"genre"`
	CustomLyrics string               `json:"custom_lyrics,omitempty"`
	Voice        lyrics.VoiceSettings `json:"voice"`
}

// Progress is a snapshot of the generator.
type Progress struct {
	Step      string   `json:"step"`
	Busy      bool     `json:"busy"`
	Log       []string `json:"log"`
	LastError string   `json:"last_error,omitempty"`
}

// Studio runs song generation and serves tracks to the transport.
type Studio struct {
	writer  lyrics.Writer
	voice   VocalSynth
	catalog *backing.Catalog
	backing InstrumentalSource
	library *Library
	logger  *zap.Logger

	localWriter lyrics.Writer // optional, tried before writer

	mu      sync.RWMutex
	step    Step
	busy    bool
	log     []string
	lastErr string
}

// New creates a studio.
func New(writer lyrics.Writer, voice VocalSynth, catalog *backing.Catalog, src InstrumentalSource, library *Library, logger *zap.Logger) *Studio {
	return &Studio{
		writer:  writer,
		voice:   voice,
		catalog: catalog,
		backing: src,
		library: library,
		logger:  logger,
	}
}

// SetLocalWriter sets a lyric writer tried before the main one. Pass nil to
// use only the main writer.
func (s *Studio) SetLocalWriter(w lyrics.Writer) {
	s.mu.Lock()
	s.localWriter = w
	s.mu.Unlock()
}

// Library returns the track library.
func (s *Studio) Library() *Library { return s.library }

// Catalog returns the backing catalog.
func (s *Studio) Catalog() *backing.Catalog { return s.catalog }

// Progress returns the current generation state.
func (s *Studio) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]string, len(s.log))
	copy(lines, s.log)
	return Progress{
		Step:      s.step.String(),
		Busy:      s.busy,
		Log:       lines,
		LastError: s.lastErr,
	}
}

// Generate writes lyrics, synthesises the vocal, encodes it and adds the
// track to the library. On failure nothing is added. Only one generation
// runs at a time.
func (s *Studio) Generate(ctx context.Context, req Request) (*Track, error) {
	if strings.TrimSpace(req.Concept) == "" && strings.TrimSpace(req.CustomLyrics) == "" {
		return nil, apperrors.ErrMissingSongIdea
	}
	genre := strings.TrimSpace(req.Genre)
	if genre == "" {
		genre = s.catalog.Fallback()
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, apperrors.ErrBusy
	}
	s.busy = true
	s.log = nil
	s.lastErr = ""
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.step = StepIdle
		s.mu.Unlock()
	}()

	start := time.Now()
	s.advance(StepWritingLyrics, fmt.Sprintf("Writing %s lyrics...", genre))
	song, err := s.writeLyrics(ctx, req, genre)
	if err != nil {
		return nil, s.fail(apperrors.NewStageError("lyrics", err))
	}
	s.addLog(fmt.Sprintf("Lyrics ready: %q", song.Title))

	s.advance(StepGeneratingAudio, "Recording the vocal...")
	vocal, err := s.voice.GenerateVocal(ctx, song.Lyrics, genre, req.Voice)
	if err != nil {
		return nil, s.fail(apperrors.NewStageError("vocal", err))
	}

	s.advance(StepCompleting, "Mastering...")
	wav, err := encodeVocal(ctx, vocal)
	if err != nil {
		return nil, s.fail(apperrors.NewStageError("encode", err))
	}
	hdr, err := audio.ParseWAVHeader(wav)
	if err != nil {
		return nil, s.fail(apperrors.NewStageError("encode", err))
	}

	url, fallback := s.catalog.Lookup(genre)
	if fallback {
		s.logger.Warn("no backing track for genre, using fallback",
			zap.String("genre", genre), zap.String("fallback", s.catalog.Fallback()))
	}

	id := uuid.NewString()
	title := song.Title
	if title == "" || title == "Untitled" {
		if name := TrackName(s.catalog.Canonical(genre), id); name != "" {
			title = name
		}
	}
	track := &Track{
		ID:              id,
		Title:           title,
		Genre:           genre,
		Mood:            song.Mood,
		Tempo:           song.Tempo,
		Lyrics:          song.Lyrics,
		CreatedAt:       time.Now(),
		SampleRate:      int(hdr.SampleRate),
		Duration:        float64(hdr.DataSize) / float64(hdr.ByteRate),
		InstrumentalURL: url,
		Thumbnail:       ThumbnailURL(id),
		Voice:           req.Voice,
		vocal:           wav,
	}
	s.library.Add(track)
	s.addLog("Done!")

	s.logger.Info("track created",
		zap.String("track", track.ID),
		zap.String("title", track.Title),
		zap.String("genre", genre),
		zap.Float64("seconds", track.Duration),
		zap.Duration("took", time.Since(start)))
	return track, nil
}

// writeLyrics tries the local writer first, with a short timeout so a slow
// LLM never blocks generation, then the main writer.
func (s *Studio) writeLyrics(ctx context.Context, req Request, genre string) (lyrics.Song, error) {
	s.mu.RLock()
	local := s.localWriter
	s.mu.RUnlock()

	if local != nil {
		lctx, cancel := context.WithTimeout(ctx, 90*time.Second)
		song, err := local.GenerateLyrics(lctx, req.Concept, genre, req.CustomLyrics)
		cancel()
		if err == nil {
			return song, nil
		}
		s.logger.Warn("local lyric writer failed, using main writer", zap.Error(err))
	}
	return s.writer.GenerateLyrics(ctx, req.Concept, genre, req.CustomLyrics)
}

// encodeVocal turns the voice model's answer into a mono WAV file.
func encodeVocal(ctx context.Context, v gemini.Vocal) ([]byte, error) {
	if v.RawPCM {
		return audio.EncodePCMBytes(v.Data, v.SampleRate)
	}
	buf, err := audio.DecodeContainer(ctx, v.Data)
	if err != nil {
		return nil, err
	}
	mono := audio.Remix(buf, 1)
	return audio.EncodeWAV(mono.Int16(), mono.SampleRate), nil
}

func (s *Studio) advance(step Step, line string) {
	s.mu.Lock()
	s.step = step
	s.appendLogLocked(line)
	s.mu.Unlock()
	s.logger.Debug("generation step", zap.Stringer("step", step))
}

func (s *Studio) addLog(line string) {
	s.mu.Lock()
	s.appendLogLocked(line)
	s.mu.Unlock()
}

func (s *Studio) appendLogLocked(line string) {
	s.log = append(s.log, line)
	if len(s.log) > logLines {
		s.log = s.log[len(s.log)-logLines:]
	}
}

func (s *Studio) fail(err error) error {
	msg := apperrors.UserMessage(err)
	s.mu.Lock()
	s.lastErr = msg
	s.appendLogLocked("Error: " + msg)
	s.mu.Unlock()
	s.logger.Error("generation failed", zap.Error(err))
	return err
}
