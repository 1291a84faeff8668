//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioSource returns an error when built without the portaudio tag.
func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("portaudio backend not compiled in (build with -tags portaudio)")
}

// newPortAudioSink returns an error when built without the portaudio tag.
func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("portaudio backend not compiled in (build with -tags portaudio)")
}
