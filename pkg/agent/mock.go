package agent

import (
	"context"
	"sync"
)

// Mock implements Runner for testing.
type Mock struct {
	// RunFunc is called when Run is invoked.
	// If nil, returns Reply.
	RunFunc func(ctx context.Context, prompt string) (string, error)

	// Reply is the default answer.
	Reply string

	mu      sync.Mutex
	prompts []string
}

// NewMock creates a mock that always answers reply.
func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

// Run records the prompt and returns RunFunc's result or Reply.
func (m *Mock) Run(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, prompt)
	}
	return m.Reply, nil
}

// Prompts returns every prompt received.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// CallCount returns the number of Run calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

var _ Runner = (*Mock)(nil)
