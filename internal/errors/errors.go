package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the studio's failure modes
var (
	ErrConfiguration           = errors.New("generation credential not configured")
	ErrGenerationFailed        = errors.New("lyric generation failed")
	ErrVocalSynthesisFailed    = errors.New("vocal synthesis failed")
	ErrMalformedAudioData      = errors.New("malformed audio data")
	ErrInstrumentalUnavailable = errors.New("instrumental track unavailable")
	ErrPlayback                = errors.New("playback failed")
	ErrBusy                    = errors.New("generation already in progress")
	ErrTrackNotFound           = errors.New("track not found")
	ErrInvalidRequest          = errors.New("invalid request")

	ErrMissingSongIdea   = fmt.Errorf("%w: concept or custom lyrics required", ErrInvalidRequest)
	ErrOutputUnavailable = fmt.Errorf("%w: output device unavailable", ErrPlayback)
)

// StageError records which step of a workflow failed
type StageError struct {
	Stage string // "lyrics", "vocal", "encode", "load_vocal", "load_instrumental", "build", "open_output", "start"
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if a fallback path exists for this failure
func (e *StageError) IsRecoverable() bool {
	return errors.Is(e.Cause, ErrInstrumentalUnavailable)
}

// NewStageError creates a StageError
func NewStageError(stage string, cause error) *StageError {
	return &StageError{Stage: stage, Cause: cause}
}

// UserMessage maps an error to a short status line suitable for a listener.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "API key is not configured."
	case errors.Is(err, ErrGenerationFailed):
		return "The AI did not return usable lyrics. Please try again."
	case errors.Is(err, ErrVocalSynthesisFailed):
		return "The AI could not sing this song. Please try again."
	case errors.Is(err, ErrMalformedAudioData):
		return "The audio data is damaged and cannot be played."
	case errors.Is(err, ErrInstrumentalUnavailable):
		return "Backing track unavailable, playing vocals only."
	case errors.Is(err, ErrOutputUnavailable):
		return "Output device unavailable."
	case errors.Is(err, ErrPlayback):
		return "Could not start playback."
	case errors.Is(err, ErrBusy):
		return "A song is already being generated."
	case errors.Is(err, ErrTrackNotFound):
		return "Track not found."
	case errors.Is(err, ErrMissingSongIdea):
		return "Please describe a song idea or paste your own lyrics."
	case errors.Is(err, ErrInvalidRequest):
		return invalidRequestMessage(err)
	default:
		return "Unknown error. Please try again."
	}
}

// invalidRequestMessage surfaces the detail wrapped around ErrInvalidRequest,
// e.g. "invalid request: track_id required" becomes
// "Invalid request: track_id required."
func invalidRequestMessage(err error) string {
	prefix := ErrInvalidRequest.Error() + ": "
	msg := err.Error()
	i := strings.LastIndex(msg, prefix)
	if i < 0 || i+len(prefix) == len(msg) {
		return "Invalid request."
	}
	return "Invalid request: " + strings.TrimSuffix(msg[i+len(prefix):], ".") + "."
}
