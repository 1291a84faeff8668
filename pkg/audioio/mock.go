package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock audio source for testing.
// Queued chunks are returned immediately, in order; once the queue is empty
// it paces synthetic audio (silence or sine wave) at BufferDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	queue   []AudioChunk
	running bool
	closed  bool

	starts     atomic.Int64
	chunksRead atomic.Int64

	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
	startErr  error
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave once the queue is drained.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithChunks pre-queues chunks.
func WithChunks(chunks ...AudioChunk) MockSourceOption {
	return func(m *MockSource) {
		m.queue = append(m.queue, chunks...)
	}
}

// WithStartError makes Start fail with err.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push appends chunks to the queue.
func (m *MockSource) Push(chunks ...AudioChunk) {
	m.mu.Lock()
	m.queue = append(m.queue, chunks...)
	m.mu.Unlock()
}

// Start begins capture.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return m.startErr
	}
	if !m.running {
		m.running = true
		m.starts.Add(1)
	}
	return nil
}

// Stop pauses capture.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

// Read returns the next queued chunk, or a paced synthetic one.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return AudioChunk{}, io.EOF
	}
	if len(m.queue) > 0 {
		chunk := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.chunksRead.Add(1)
		return chunk, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case <-time.After(m.cfg.BufferDuration):
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return AudioChunk{}, io.EOF
	}
	m.chunksRead.Add(1)
	return m.generateChunk(), nil
}

func (m *MockSource) generateChunk() AudioChunk {
	frames := m.cfg.BufferSize()
	samples := make([]int16, frames*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < frames; i++ {
			v := int16(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)) * 32767)
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = v
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Closed reports whether Close has been called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Starts returns how many times capture went from stopped to running.
func (m *MockSource) Starts() int64 { return m.starts.Load() }

// ChunksRead returns the number of chunks handed out.
func (m *MockSource) ChunksRead() int64 { return m.chunksRead.Load() }

var _ Source = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It records every chunk written; Flush optionally simulates playback time.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	written  []AudioChunk
	clears   int
	writeErr error

	playback time.Duration
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithPlaybackDuration makes Flush block for d (or until ctx is cancelled).
func WithPlaybackDuration(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.playback = d
	}
}

// WithWriteError makes Write fail with err.
func WithWriteError(err error) MockSinkOption {
	return func(m *MockSink) {
		m.writeErr = err
	}
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins accepting audio.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop halts audio acceptance.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

// Write records chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, chunk)
	return nil
}

// Flush simulates waiting for playback.
func (m *MockSink) Flush(ctx context.Context) error {
	if m.playback <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.playback):
		return nil
	}
}

// Clear counts the call; recorded chunks are kept for assertions.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	m.clears++
	m.mu.Unlock()
	return nil
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config { return m.cfg }

// Name returns "mock".
func (m *MockSink) Name() string { return "mock" }

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

// Written returns a copy of every chunk written so far.
func (m *MockSink) Written() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AudioChunk, len(m.written))
	copy(out, m.written)
	return out
}

// SamplesWritten returns the total number of samples written.
func (m *MockSink) SamplesWritten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.written {
		n += len(c.Samples)
	}
	return n
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

var _ Sink = (*MockSink)(nil)
