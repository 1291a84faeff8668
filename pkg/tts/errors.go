package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned by Validate when no API key is set.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoVoice is returned by Validate when no voice is set.
	ErrNoVoice = errors.New("tts: voice required")

	// ErrEmptyAudio is returned when the provider answers with no audio.
	ErrEmptyAudio = errors.New("tts: empty audio response")
)

// APIError is a non-200 answer from a speech endpoint. Message and Code come
// from the JSON error body when there is one.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

// ProviderError tags a transport or decoding failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
