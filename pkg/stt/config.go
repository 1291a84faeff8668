package stt

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-kira/pkg/state"
)

// Config holds transcription configuration.
type Config struct {
	// OpenAI backend
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client

	// Language hint, e.g. "de". Empty lets the backend detect it.
	Language string

	// Whisper backend
	ModelPath string
	Threads   int

	// Adapter
	Transcriber Transcriber
	Shared      *state.Shared
	Timeout     time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring transcription.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithHTTPClient sets the HTTP client, e.g. one routed through a proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLanguage sets the language hint.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithModelPath sets the local whisper.cpp model file.
func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithThreads sets the whisper.cpp thread count. <=0 uses every CPU.
func WithThreads(n int) Option {
	return func(c *Config) {
		c.Threads = n
	}
}

// WithTranscriber sets the adapter backend.
func WithTranscriber(t Transcriber) Option {
	return func(c *Config) {
		c.Transcriber = t
	}
}

// WithShared injects the process-wide flags.
func WithShared(s *state.Shared) Option {
	return func(c *Config) {
		c.Shared = s
	}
}

// WithTimeout bounds one transcription.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:   "whisper-1",
		Timeout: 60 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
