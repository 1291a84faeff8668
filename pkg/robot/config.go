package robot

import (
	"log/slog"
	"net/http"

	"github.com/teslashibe/go-kira/internal/httpc"
	"github.com/teslashibe/go-kira/pkg/state"
)

// DefaultBaseURL is where the robot service listens on the device itself.
const DefaultBaseURL = "http://localhost:8787"

// Config holds client configuration.
type Config struct {
	BaseURL         string
	HTTPClient      *http.Client
	Shared          *state.Shared
	AutoCheckHealth bool
	Events          EventSource
	Logger          *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the robot API base URL. Trailing slashes are trimmed.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = hc
	}
}

// WithShared injects the process-wide flags (expression lock).
func WithShared(s *state.Shared) Option {
	return func(c *Config) {
		c.Shared = s
	}
}

// WithAutoCheckHealth makes Attach run a health check.
func WithAutoCheckHealth(enabled bool) Option {
	return func(c *Config) {
		c.AutoCheckHealth = enabled
	}
}

// WithEvents sets the event source used by SpeakAndWait.
func WithEvents(es EventSource) Option {
	return func(c *Config) {
		c.Events = es
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
		BaseURL:         DefaultBaseURL,
		AutoCheckHealth: true,
		Logger:          slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return httpc.NewClient(httpc.RobotTimeout)
}
