//go:build !whisper

package stt

import "context"

// Whisper is unavailable in this build.
type Whisper struct{}

// NewWhisper always fails without the whisper build tag.
func NewWhisper(opts ...Option) (*Whisper, error) {
	return nil, ErrWhisperUnavailable
}

// Transcribe always fails without the whisper build tag.
func (w *Whisper) Transcribe(ctx context.Context, data []byte, filename string) (string, error) {
	return "", ErrWhisperUnavailable
}

// Close is a no-op.
func (w *Whisper) Close() error { return nil }

var _ Transcriber = (*Whisper)(nil)
