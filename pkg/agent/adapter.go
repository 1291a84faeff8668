package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Adapter runs prompts and keeps the transcript. Concurrent RunPrompt calls
// are not serialized; each renders the transcript as it stood when it began.
type Adapter struct {
	runner Runner
	logger *slog.Logger

	loading atomic.Int32

	mu         sync.Mutex
	transcript Transcript
	result     string
	lastErr    error
}

// NewAdapter creates an adapter. A nil Runner is allowed; prompts then record
// ErrMissingAPIKey.
func NewAdapter(opts ...Option) *Adapter {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		runner: cfg.Runner,
		logger: cfg.Logger.With("component", "agent.adapter"),
	}
}

// RunPrompt sends text with the conversation so far and returns the reply.
// On success both sides are appended to the transcript. On failure the
// transcript is untouched and an ErrInvocationFailed error is returned.
func (a *Adapter) RunPrompt(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if a.runner == nil {
		a.setErr(ErrMissingAPIKey)
		a.logger.Warn("no agent runner configured", "error", ErrMissingAPIKey)
		return "", nil
	}

	a.loading.Add(1)
	defer a.loading.Add(-1)

	a.mu.Lock()
	a.lastErr = nil
	prompt := a.transcript.Render(text)
	a.mu.Unlock()

	start := time.Now()
	reply, err := a.runner.Run(ctx, prompt)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvocationFailed, err)
		// Cancelled runs are not recorded.
		if ctx.Err() != nil {
			a.logger.Debug("agent run cancelled", "error", err)
			return "", err
		}
		a.setErr(err)
		a.logger.Error("agent run failed", "error", err)
		return "", err
	}

	a.mu.Lock()
	a.transcript.Append(RoleUser, text)
	a.transcript.Append(RoleAssistant, reply)
	a.result = reply
	a.mu.Unlock()

	a.logger.Info("agent replied", "chars", len(reply), "latency", time.Since(start))
	return reply, nil
}

// Result returns the last successful reply.
func (a *Adapter) Result() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Loading reports whether a run is in flight.
func (a *Adapter) Loading() bool { return a.loading.Load() > 0 }

// Err returns the error of the last run.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Transcript returns a copy of the conversation so far.
func (a *Adapter) Transcript() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcript.Entries()
}

// Reset forgets the conversation.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.transcript = Transcript{}
	a.result = ""
	a.lastErr = nil
	a.mu.Unlock()
}

func (a *Adapter) setErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}
