package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/studio"
	"github.com/satindergrewal/melodai/internal/transport"
)

// maxBodyBytes bounds request bodies; custom lyrics are the largest field.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req studio.Request
	if !decode(w, r, &req) {
		return
	}
	if req.Genre != "" && s.deps.Catalog != nil && s.deps.Catalog.IsValidGenre(req.Genre) {
		req.Genre = s.deps.Catalog.Canonical(req.Genre)
	}

	track, err := s.deps.Generator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tracks": s.deps.Tracks.List()})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	track, err := s.deps.Tracks.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleVocal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	track, err := s.deps.Tracks.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	wav, err := s.deps.Tracks.VocalWAV(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(wav) == 0 {
		s.writeError(w, apperrors.ErrMalformedAudioData)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.wav"`, track.FileName()))
	w.Write(wav)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"track_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.TrackID == "" {
		s.writeError(w, fmt.Errorf("%w: track_id required", apperrors.ErrInvalidRequest))
		return
	}
	if err := s.deps.Transport.Play(r.Context(), req.TrackID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transportStatus())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Transport.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transportStatus())
}

func (s *Server) handleGain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vocal        *float64 `json:"vocal"`
		Instrumental *float64 `json:"instrumental"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Vocal == nil && req.Instrumental == nil {
		s.writeError(w, fmt.Errorf("%w: vocal or instrumental gain required", apperrors.ErrInvalidRequest))
		return
	}
	if req.Vocal != nil {
		s.deps.Transport.SetVocalGain(*req.Vocal)
	}
	if req.Instrumental != nil {
		s.deps.Transport.SetInstrumentalGain(*req.Instrumental)
	}
	writeJSON(w, http.StatusOK, s.transportStatus())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"transport":  s.transportStatus(),
		"generation": s.deps.Generator.Progress(),
		"tracks":     len(s.deps.Tracks.List()),
	}
	if s.deps.Listeners != nil {
		resp["listeners"] = s.deps.Listeners()
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"genres": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"genres":   s.deps.Catalog.Genres(),
		"fallback": s.deps.Catalog.Fallback(),
	})
}

// transportView adds the timing fields in seconds.
type transportView struct {
	transport.Status
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

func (s *Server) transportStatus() transportView {
	st := s.deps.Transport.Status()
	return transportView{
		Status:   st,
		Position: st.Position.Seconds(),
		Duration: st.Duration.Seconds(),
	}
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrBusy), errors.Is(err, transport.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrConfiguration),
		errors.Is(err, apperrors.ErrOutputUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrGenerationFailed),
		errors.Is(err, apperrors.ErrVocalSynthesisFailed),
		errors.Is(err, apperrors.ErrInstrumentalUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := apperrors.UserMessage(err)
	if errors.Is(err, transport.ErrSuperseded) {
		msg = "Another play request took over."
	}
	if code >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
