package agent

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultInstructions is the Kira persona.
const DefaultInstructions = "You are a Kira, a robot employed by Taunussparkasse. " +
	"Your output is spoken german language, so don't include any special formatting or markup. " +
	"Always respond in a very short and friendly manner."

// Config holds agent configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// Model settings
	Model         string
	Instructions  string
	Contexts      []ContextBlock
	Tools         []Tool
	MaxToolRounds int
	Timeout       time.Duration

	// Adapter
	Runner Runner

	Logger *slog.Logger
}

// Option is a functional option for configuring the agent.
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

// WithHTTPClient sets the HTTP client, e.g. one routed through a proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithInstructions replaces the persona.
func WithInstructions(s string) Option {
	return func(c *Config) {
		c.Instructions = s
	}
}

// WithContexts sets the context blocks appended to the instructions.
func WithContexts(blocks ...ContextBlock) Option {
	return func(c *Config) {
		c.Contexts = blocks
	}
}

// WithTools sets the tools offered to the model.
func WithTools(tools ...Tool) Option {
	return func(c *Config) {
		c.Tools = tools
	}
}

// WithMaxToolRounds bounds consecutive tool-call rounds per prompt.
func WithMaxToolRounds(n int) Option {
	return func(c *Config) {
		c.MaxToolRounds = n
	}
}

// WithTimeout bounds one model request.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRunner sets the adapter's runner.
func WithRunner(r Runner) Option {
	return func(c *Config) {
		c.Runner = r
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
		Model:         "gpt-4o-mini",
		Instructions:  DefaultInstructions,
		MaxToolRounds: 8,
		Timeout:       60 * time.Second,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
