package studio

import (
	"context"
	"fmt"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// LoadVocal decodes a track's stored vocal.
func (s *Studio) LoadVocal(ctx context.Context, trackID string) (*audio.Buffer, error) {
	t, err := s.library.Get(trackID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audio.DecodeWAV(t.VocalWAV())
}

// LoadInstrumental fetches the backing track chosen for the track's genre.
func (s *Studio) LoadInstrumental(ctx context.Context, trackID string) (*audio.Buffer, error) {
	t, err := s.library.Get(trackID)
	if err != nil {
		return nil, err
	}
	if s.backing == nil {
		return nil, fmt.Errorf("%w: no backing source", apperrors.ErrInstrumentalUnavailable)
	}
	return s.backing.Fetch(ctx, t.InstrumentalURL)
}
