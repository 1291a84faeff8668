package voice

import (
	"log/slog"
)

// Config holds orchestrator configuration.
// Responder is required; every other collaborator is optional.
type Config struct {
	Responder   Responder
	Microphone  Microphone
	Transcriber Transcriber
	Speaker     Speaker
	Sleep       SleepState

	// Prompt is the initial text input.
	Prompt string

	// OnResponse is called with the output of every current turn, before
	// agent complete listeners.
	OnResponse func(output string)

	// AutoStartListening starts the microphone in Start.
	AutoStartListening bool

	Metrics *Metrics
	Logger  *slog.Logger
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Config)

// WithResponder sets the agent.
func WithResponder(r Responder) Option {
	return func(c *Config) {
		c.Responder = r
	}
}

// WithMicrophone sets the voice activity detector.
func WithMicrophone(m Microphone) Option {
	return func(c *Config) {
		c.Microphone = m
	}
}

// WithTranscriber sets the source of voice turns.
func WithTranscriber(t Transcriber) Option {
	return func(c *Config) {
		c.Transcriber = t
	}
}

// WithSpeaker sets the speech controller.
func WithSpeaker(s Speaker) Option {
	return func(c *Config) {
		c.Speaker = s
	}
}

// WithSleep sets the sleep mode watched for muting.
func WithSleep(s SleepState) Option {
	return func(c *Config) {
		c.Sleep = s
	}
}

// WithPrompt sets the initial text input.
func WithPrompt(p string) Option {
	return func(c *Config) {
		c.Prompt = p
	}
}

// WithOnResponse sets the response callback.
func WithOnResponse(fn func(output string)) Option {
	return func(c *Config) {
		c.OnResponse = fn
	}
}

// WithAutoStartListening starts the microphone in Start.
func WithAutoStartListening(enabled bool) Option {
	return func(c *Config) {
		c.AutoStartListening = enabled
	}
}

// WithMetrics sets the metrics sink. A private one is created otherwise.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Prompt: DefaultPrompt,
		Logger: slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Responder == nil {
		return ErrNoResponder
	}
	return nil
}
