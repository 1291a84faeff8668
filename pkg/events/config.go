package events

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport selects how the client receives events.
type Transport string

const (
	// TransportWebSocket reads from ws://<host>:8790/events.
	TransportWebSocket Transport = "websocket"
	// TransportSSE reads named events from GET /api/events.
	TransportSSE Transport = "sse"
)

// Config holds event client configuration.
type Config struct {
	URL       string
	Transport Transport

	// HTTPClient is used by the SSE transport.
	HTTPClient *http.Client

	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
	AwaitTimeout     time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithURL sets the stream URL.
func WithURL(url string) Option {
	return func(c *Config) {
		c.URL = url
	}
}

// WithTransport selects WebSocket or SSE.
func WithTransport(t Transport) Option {
	return func(c *Config) {
		c.Transport = t
	}
}

// WithHTTPClient sets the HTTP client for the SSE transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = hc
	}
}

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ReconnectDelay = d
	}
}

// WithAwaitTimeout overrides DefaultAwaitTimeout. Tests use this.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AwaitTimeout = d
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
		URL:              "ws://localhost:8790/events",
		Transport:        TransportWebSocket,
		HandshakeTimeout: 10 * time.Second,
		ReconnectDelay:   2 * time.Second,
		AwaitTimeout:     DefaultAwaitTimeout,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
