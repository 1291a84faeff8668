package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrNoTranscriber is recorded when a segment arrives with no backend configured.
	ErrNoTranscriber = errors.New("stt: no transcriber configured")

	// ErrTranscriptionFailed wraps any backend failure.
	ErrTranscriptionFailed = errors.New("stt: transcription failed")

	// ErrWhisperUnavailable is returned when the binary was built without whisper support.
	ErrWhisperUnavailable = errors.New("stt: whisper support not compiled in (build with -tags whisper)")
)

// TranscriptionError carries the backend that failed.
type TranscriptionError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Is matches ErrTranscriptionFailed.
func (e *TranscriptionError) Is(target error) bool {
	return target == ErrTranscriptionFailed
}
