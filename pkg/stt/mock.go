package stt

import (
	"context"
	"sync"
)

// Mock implements Transcriber for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked.
	// If nil, returns Text.
	TranscribeFunc func(ctx context.Context, wav []byte, filename string) (string, error)

	// Text is the default transcript.
	Text string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Transcribe invocation.
type MockCall struct {
	Filename string
	Bytes    int
}

// NewMock creates a mock that always returns text.
func NewMock(text string) *Mock {
	return &Mock{Text: text}
}

// Transcribe records the call and returns TranscribeFunc's result or Text.
func (m *Mock) Transcribe(ctx context.Context, wav []byte, filename string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Filename: filename, Bytes: len(wav)})
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, wav, filename)
	}
	return m.Text, nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Transcribe calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ Transcriber = (*Mock)(nil)
