package vad

import (
	"log/slog"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/robot"
	"github.com/teslashibe/go-kira/pkg/state"
)

// Config holds detector configuration.
type Config struct {
	// Source opens the capture device on first Init.
	Source audioio.SourceFactory

	// Classifier decides speech per frame. Default: RMS with DefaultRMSConfig.
	Classifier Classifier

	// Robot receives face changes on speech start and end. Optional.
	Robot robot.ExpressionController

	// Shared holds the process-wide mute flag.
	Shared *state.Shared

	// PreSpeechPadFrames is how many frames before the detected start are kept.
	PreSpeechPadFrames int

	// MinSpeechFrames is the shortest utterance that counts. Shorter ones are
	// dropped without any event.
	MinSpeechFrames int

	Logger *slog.Logger
}

// Option is a functional option for configuring the detector.
type Option func(*Config)

// WithSource sets the capture source factory.
func WithSource(f audioio.SourceFactory) Option {
	return func(c *Config) {
		c.Source = f
	}
}

// WithClassifier overrides the frame classifier.
func WithClassifier(cl Classifier) Option {
	return func(c *Config) {
		c.Classifier = cl
	}
}

// WithRobot sets the face controller.
func WithRobot(r robot.ExpressionController) Option {
	return func(c *Config) {
		c.Robot = r
	}
}

// WithShared injects the process-wide flags.
func WithShared(s *state.Shared) Option {
	return func(c *Config) {
		c.Shared = s
	}
}

// WithPadding sets the pre-speech padding and minimum speech length in frames.
func WithPadding(preSpeechPad, minSpeech int) Option {
	return func(c *Config) {
		c.PreSpeechPadFrames = preSpeechPad
		c.MinSpeechFrames = minSpeech
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
		PreSpeechPadFrames: 10, // 200ms at 20ms frames
		MinSpeechFrames:    10,
		Logger:             slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
