//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures from the default input device.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	running bool
	closed  bool
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (*PortAudioSource, error) {
	// Pa_Initialize is reference counted; every source and sink pairs it with Terminate in Close.
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]int16, cfg.BufferSize()*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize(), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open input: %w", err)
	}

	return &PortAudioSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
		stream: stream,
		buf:    buf,
	}, nil
}

// Start begins audio capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start: %w", err)
	}
	s.running = true
	s.logger.Info("capture started", "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop pauses capture.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.stream.Stop()
}

// Read blocks for one buffer of input.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	if err := ctx.Err(); err != nil {
		return AudioChunk{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AudioChunk{}, io.EOF
	}
	if !s.running {
		return AudioChunk{}, io.ErrNoProgress
	}
	if err := s.stream.Read(); err != nil {
		return AudioChunk{}, fmt.Errorf("portaudio read: %w", err)
	}

	samples := make([]int16, len(s.buf))
	copy(samples, s.buf)
	return AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}, nil
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return "portaudio" }

// Close stops and releases the stream.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.running {
		s.running = false
		_ = s.stream.Stop()
	}
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// PortAudioSink plays to the default output device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	running bool
	closed  bool
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]int16, cfg.BufferSize()*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.BufferSize(), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open output: %w", err)
	}

	return &PortAudioSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
		stream: stream,
		buf:    buf,
	}, nil
}

// Start begins playback.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio start: %w", err)
	}
	s.running = true
	return nil
}

// Stop halts playback.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return s.stream.Stop()
}

// Write plays chunk one device buffer at a time, checking ctx between buffers.
func (s *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}

	for off := 0; off < len(chunk.Samples); off += len(s.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.buf, chunk.Samples[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("portaudio write: %w", err)
		}
	}
	return nil
}

// Flush is a no-op: Write returns only after the device accepted every buffer.
func (s *PortAudioSink) Flush(ctx context.Context) error { return ctx.Err() }

// Clear is a no-op: there is no queue beyond the device buffer.
func (s *PortAudioSink) Clear() error { return nil }

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return "portaudio" }

// Close stops and releases the stream.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.running {
		s.running = false
		_ = s.stream.Stop()
	}
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

var (
	_ Source = (*PortAudioSource)(nil)
	_ Sink   = (*PortAudioSink)(nil)
)
