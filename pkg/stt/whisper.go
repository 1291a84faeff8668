//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/wav"
)

const (
	backendWhisper = "whisper"
	whisperRate    = 16000
)

// Whisper transcribes locally with a whisper.cpp model.
type Whisper struct {
	model    whisper.Model
	language string
	threads  int
	logger   *slog.Logger

	// whisper.cpp contexts are not safe to share; one segment at a time.
	mu sync.Mutex
}

// NewWhisper loads the model at the configured ModelPath.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.ModelPath == "" {
		return nil, errors.New("stt: whisper model path required")
	}
	m, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load whisper model: %w", err)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	lang := cfg.Language
	if lang == "" {
		lang = "auto"
	}

	return &Whisper{
		model:    m,
		language: lang,
		threads:  threads,
		logger:   cfg.Logger.With("component", "stt.whisper"),
	}, nil
}

// Transcribe decodes wav, resamples to 16kHz and runs the model.
func (w *Whisper) Transcribe(ctx context.Context, data []byte, _ string) (string, error) {
	samples, rate, err := wav.Decode(data)
	if err != nil {
		return "", &TranscriptionError{Backend: backendWhisper, Err: err}
	}
	if rate != whisperRate {
		samples = audioio.Int16ToFloat32(audioio.Resample(audioio.Float32ToInt16(samples), rate, whisperRate))
	}
	if len(samples) == 0 {
		return "", nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", &TranscriptionError{Backend: backendWhisper, Err: fmt.Errorf("new context: %w", err)}
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		return "", &TranscriptionError{Backend: backendWhisper, Err: fmt.Errorf("set language: %w", err)}
	}
	wctx.SetThreads(uint(w.threads))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &TranscriptionError{Backend: backendWhisper, Err: fmt.Errorf("process: %w", err)}
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &TranscriptionError{Backend: backendWhisper, Err: fmt.Errorf("next segment: %w", err)}
		}
		parts = append(parts, strings.TrimSpace(s.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	w.logger.Debug("transcribed", "samples", len(samples), "chars", len(text))
	return text, nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

var _ Transcriber = (*Whisper)(nil)
