package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start prepares the device for Write.
	Start(ctx context.Context) error

	// Stop halts playback. It is safe to call Stop multiple times.
	Stop() error

	// Write queues a chunk for playback. It may block while the device buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush blocks until everything written so far has been played.
	Flush(ctx context.Context) error

	// Clear discards buffered audio immediately.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("portaudio", "mock").
	Name() string

	io.Closer
}
