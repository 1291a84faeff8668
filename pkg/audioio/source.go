package audioio

import (
	"context"
	"io"
)

// AudioChunk represents a chunk of audio data.
type AudioChunk struct {
	// Samples contains PCM16 audio samples, interleaved when Channels > 1.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Float32 returns the samples scaled to [-1, 1].
func (c AudioChunk) Float32() []float32 {
	return Int16ToFloat32(c.Samples)
}

// Duration returns the duration of this audio chunk in seconds.
func (c AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture. Calling Start on a running source is a no-op.
	Start(ctx context.Context) error

	// Stop pauses capture without releasing the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// Read blocks until the next chunk is available.
	// Returns io.EOF once the source is closed.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("portaudio", "mock").
	Name() string

	// Close releases the device. A closed source cannot be restarted.
	io.Closer
}

// SourceFactory opens a capture source. The VAD calls it lazily on first use.
type SourceFactory func(ctx context.Context) (Source, error)
