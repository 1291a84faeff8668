package speech

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/robot"
	"github.com/teslashibe/go-kira/pkg/tts"
)

// Config holds controller configuration.
type Config struct {
	// Provider synthesizes audio. Nil disables speech with a warning.
	Provider tts.Provider

	// Sink plays decoded audio.
	Sink audioio.Sink

	// Robot receives the talking face and animation. Optional.
	Robot robot.ExpressionController

	// RobotTimeout bounds the face calls made when audio arrives.
	RobotTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring the controller.
type Option func(*Config)

// WithProvider sets the TTS provider.
func WithProvider(p tts.Provider) Option {
	return func(c *Config) {
		c.Provider = p
	}
}

// WithSink sets the audio output.
func WithSink(s audioio.Sink) Option {
	return func(c *Config) {
		c.Sink = s
	}
}

// WithRobot sets the face controller.
func WithRobot(r robot.ExpressionController) Option {
	return func(c *Config) {
		c.Robot = r
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
		RobotTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
