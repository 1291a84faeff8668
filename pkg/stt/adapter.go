package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-kira/pkg/listener"
	"github.com/teslashibe/go-kira/pkg/state"
	"github.com/teslashibe/go-kira/pkg/vad"
)

// SegmentSource emits finished utterances. *vad.Detector satisfies it.
type SegmentSource interface {
	OnSpeechEnd(fn func(vad.Segment)) listener.Cancel
}

// Adapter transcribes VAD segments and notifies transcript listeners.
type Adapter struct {
	transcriber Transcriber
	shared      *state.Shared
	timeout     time.Duration
	logger      *slog.Logger

	onText *listener.Registry[string]

	transcribing atomic.Bool
	wg           sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// NewAdapter creates an adapter. A nil Transcriber is allowed; segments are
// then dropped with a warning.
func NewAdapter(opts ...Option) *Adapter {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Shared == nil {
		cfg.Shared = state.New()
	}
	logger := cfg.Logger.With("component", "stt.adapter")

	return &Adapter{
		transcriber: cfg.Transcriber,
		shared:      cfg.Shared,
		timeout:     cfg.Timeout,
		logger:      logger,
		onText:      listener.New[string]("stt.transcription", logger),
	}
}

// OnTranscription registers fn for every non-empty transcript.
func (a *Adapter) OnTranscription(fn listener.Handler[string]) listener.Cancel {
	return a.onText.Add(fn)
}

// Listen subscribes the adapter to src.
func (a *Adapter) Listen(src SegmentSource) listener.Cancel {
	return src.OnSpeechEnd(a.HandleSegment)
}

// HandleSegment is the speech-end listener. The mute check happens on the
// caller's goroutine; recognition runs in the background.
func (a *Adapter) HandleSegment(seg vad.Segment) {
	if a.shared.Muted() {
		a.logger.Debug("segment dropped: microphone muted")
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		_ = a.Process(ctx, seg.WAV)
	}()
}

// Process transcribes wav and notifies listeners. Errors are also kept in Err.
func (a *Adapter) Process(ctx context.Context, wav []byte) error {
	if a.shared.Muted() {
		return nil
	}
	if a.transcriber == nil {
		a.logger.Warn("no transcriber configured, dropping segment")
		return nil
	}

	a.transcribing.Store(true)
	defer a.transcribing.Store(false)
	a.setErr(nil)

	start := time.Now()
	text, err := a.transcriber.Transcribe(ctx, wav, DefaultFilename)
	if err != nil {
		if !errors.Is(err, ErrTranscriptionFailed) {
			err = fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
		}
		a.setErr(err)
		a.logger.Error("transcription failed", "error", err)
		return err
	}
	if text == "" {
		a.logger.Debug("empty transcript dropped")
		return nil
	}

	a.logger.Info("transcribed", "text", text, "latency", time.Since(start))
	a.onText.Notify(ctx, text)
	return nil
}

// Wait blocks until background transcriptions finish.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

// IsTranscribing reports whether a call is in flight.
func (a *Adapter) IsTranscribing() bool { return a.transcribing.Load() }

// Err returns the last transcription error.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Adapter) setErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}
