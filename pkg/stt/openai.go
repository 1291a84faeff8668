package stt

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const backendOpenAI = "openai"

// OpenAI transcribes through the /audio/transcriptions endpoint.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
	logger   *slog.Logger
}

// NewOpenAI creates an OpenAI transcriber.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client:   openai.NewClient(reqOpts...),
		model:    cfg.Model,
		language: cfg.Language,
		logger:   cfg.Logger.With("component", "stt.openai"),
	}, nil
}

// Transcribe uploads wav and returns the recognized text.
func (o *OpenAI) Transcribe(ctx context.Context, wav []byte, filename string) (string, error) {
	if filename == "" {
		filename = DefaultFilename
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), filename, "audio/wav"),
		Model: openai.AudioModel(o.model),
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", &TranscriptionError{Backend: backendOpenAI, Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	o.logger.Debug("transcribed", "bytes", len(wav), "chars", len(text), "model", o.model)
	return text, nil
}

// Close is a no-op.
func (o *OpenAI) Close() error {
	return nil
}

var _ Transcriber = (*OpenAI)(nil)
