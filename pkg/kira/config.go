// Package kira wires the voice pipeline, the robot clients and the web
// front-end into one application.
package kira

import (
	"fmt"
	"net/url"
	"time"

	"github.com/teslashibe/go-kira/internal/config"
	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/voice"
)

// Config holds all configuration for the application.
// Flag parsing is done in cmd/kira; this struct is data only.
type Config struct {
	Debug    bool
	LogLevel string

	// AI backends. An empty key leaves the agent, transcription and TTS
	// unconfigured; prompts then fail with the agent's missing key error.
	OpenAIKey     string
	OpenAIBaseURL string
	LLMModel      string
	SpeechModel   string
	TTSModel      string
	TTSVoice      string
	WhisperModel  string // local whisper.cpp model; overrides SpeechModel
	SOCKSProxy    string

	// Robot
	RobotAPIURL     string
	RobotEventsURL  string
	EventsTransport events.Transport
	AutoCheckHealth bool
	RobotTimeout    time.Duration
	RemoteTools     bool

	// Audio
	AudioBackend audioio.Backend
	SampleRate   int

	// Voice
	Prompt     string
	AutoListen bool

	// Web
	WebAddr   string
	StaticDir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		LLMModel:        config.DefaultLLMModel,
		SpeechModel:     config.DefaultSpeechModel,
		TTSModel:        config.DefaultTTSModel,
		TTSVoice:        config.DefaultTTSVoice,
		RobotAPIURL:     config.DefaultRobotAPIURL,
		RobotEventsURL:  config.DefaultRobotEventsURL,
		EventsTransport: events.TransportWebSocket,
		AutoCheckHealth: true,
		RobotTimeout:    5 * time.Second,
		RemoteTools:     true,
		AudioBackend:    audioio.BackendAuto,
		SampleRate:      config.DefaultSampleRate,
		Prompt:          voice.DefaultPrompt,
		AutoListen:      true,
		WebAddr:         config.DefaultWebAddr,
	}
}

// FromSettings builds a Config from loaded environment settings.
func FromSettings(s config.Settings) Config {
	cfg := DefaultConfig()
	cfg.LogLevel = s.LogLevel
	cfg.OpenAIKey = s.OpenAIAPIKey
	cfg.OpenAIBaseURL = s.OpenAIBaseURL
	cfg.LLMModel = s.LLMModel
	cfg.SpeechModel = s.SpeechModel
	cfg.TTSModel = s.TTSModel
	cfg.TTSVoice = s.TTSVoice
	cfg.WhisperModel = s.WhisperModel
	cfg.SOCKSProxy = s.SOCKSProxy
	cfg.RobotAPIURL = s.RobotAPIURL
	cfg.RobotEventsURL = s.RobotEventsURL
	if s.EventsTransport != "" {
		cfg.EventsTransport = events.Transport(s.EventsTransport)
	}
	cfg.AutoCheckHealth = s.AutoCheckHealth
	if s.RobotTimeout > 0 {
		cfg.RobotTimeout = s.RobotTimeout
	}
	if s.AudioBackend != "" {
		cfg.AudioBackend = audioio.Backend(s.AudioBackend)
	}
	if s.SampleRate > 0 {
		cfg.SampleRate = s.SampleRate
	}
	cfg.AutoListen = s.AutoListen
	if s.WebAddr != "" {
		cfg.WebAddr = s.WebAddr
	}
	cfg.StaticDir = s.StaticDir
	return cfg
}

// Validate checks that the configuration is usable. Missing API keys are not
// an error; the affected components report it at use.
func (c *Config) Validate() error {
	if err := validURL(c.RobotAPIURL, "http", "https"); err != nil {
		return &ConfigError{Field: "RobotAPIURL", Message: "ROBOT_API_URL " + err.Error()}
	}
	switch c.EventsTransport {
	case events.TransportWebSocket:
		if err := validURL(c.RobotEventsURL, "ws", "wss"); err != nil {
			return &ConfigError{Field: "RobotEventsURL", Message: "ROBOT_EVENTS_URL " + err.Error()}
		}
	case events.TransportSSE:
		if err := validURL(c.RobotEventsURL, "http", "https"); err != nil {
			return &ConfigError{Field: "RobotEventsURL", Message: "ROBOT_EVENTS_URL " + err.Error()}
		}
	default:
		return &ConfigError{Field: "EventsTransport", Message: fmt.Sprintf("unknown events transport %q (want websocket or sse)", c.EventsTransport)}
	}
	switch c.AudioBackend {
	case audioio.BackendAuto, audioio.BackendMock, audioio.BackendPortAudio:
	default:
		return &ConfigError{Field: "AudioBackend", Message: fmt.Sprintf("unknown audio backend %q", c.AudioBackend)}
	}
	if c.SampleRate <= 0 {
		return &ConfigError{Field: "SampleRate", Message: "sample rate must be positive"}
	}
	if c.RobotTimeout <= 0 {
		return &ConfigError{Field: "RobotTimeout", Message: "robot timeout must be positive"}
	}
	return nil
}

func validURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("must be a %s URL, got %q", schemes[0], raw)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
