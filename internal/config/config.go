// Package config loads go-kira settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults for the robot and the AI backends.
const (
	DefaultRobotAPIURL    = "http://localhost:8787"
	DefaultRobotEventsURL = "ws://localhost:8790/events"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultSpeechModel    = "whisper-1"
	DefaultTTSModel       = "gpt-4o-mini-tts"
	DefaultTTSVoice       = "alloy"
	DefaultWebAddr        = ":8080"
	DefaultSampleRate     = 16000
)

// Settings is the flat view of every tunable the commands read.
type Settings struct {
	LogLevel string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMModel      string
	SpeechModel   string
	TTSModel      string
	TTSVoice      string
	WhisperModel  string
	SOCKSProxy    string

	RobotAPIURL     string
	RobotEventsURL  string
	EventsTransport string
	AutoCheckHealth bool
	RobotTimeout    time.Duration

	AudioBackend string
	SampleRate   int

	WebAddr    string
	StaticDir  string
	AutoListen bool
}

// Load reads envFile (if present) into the process environment, then binds
// every setting to its env var. The original VITE_* names are accepted as
// fallbacks so an existing front-end .env keeps working.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("speech.model", DefaultSpeechModel)
	v.SetDefault("tts.model", DefaultTTSModel)
	v.SetDefault("tts.voice", DefaultTTSVoice)
	v.SetDefault("robot.api_url", DefaultRobotAPIURL)
	v.SetDefault("robot.events_url", DefaultRobotEventsURL)
	v.SetDefault("robot.events_transport", "websocket")
	v.SetDefault("robot.auto_check_health", true)
	v.SetDefault("robot.timeout", "5s")
	v.SetDefault("audio.backend", "mock")
	v.SetDefault("audio.sample_rate", DefaultSampleRate)
	v.SetDefault("web.addr", DefaultWebAddr)
	v.SetDefault("voice.auto_listen", true)

	bind := []struct {
		key  string
		envs []string
	}{
		{"log.level", []string{"LOG_LEVEL"}},
		{"openai.api_key", []string{"OPENAI_API_KEY", "VITE_OPENAI_API_KEY"}},
		{"openai.base_url", []string{"OPENAI_API_BASE_URL", "VITE_OPENAI_API_BASE_URL"}},
		{"llm.model", []string{"LLM_MODEL", "VITE_LLM_MODEL"}},
		{"speech.model", []string{"SPEECH_MODEL", "VITE_SPEECH_MODEL"}},
		{"tts.model", []string{"TTS_MODEL", "VITE_TTS_MODEL"}},
		{"tts.voice", []string{"TTS_VOICE", "VITE_TTS_VOICE"}},
		{"whisper.model", []string{"WHISPER_MODEL"}},
		{"proxy.socks", []string{"SOCKS_PROXY"}},
		{"robot.api_url", []string{"ROBOT_API_URL", "VITE_ROBOT_API_URL"}},
		{"robot.events_url", []string{"ROBOT_EVENTS_URL", "VITE_ROBOT_EVENTS_URL"}},
		{"robot.events_transport", []string{"ROBOT_EVENTS_TRANSPORT"}},
		{"robot.auto_check_health", []string{"ROBOT_AUTO_CHECK_HEALTH"}},
		{"robot.timeout", []string{"ROBOT_TIMEOUT"}},
		{"audio.backend", []string{"AUDIO_BACKEND"}},
		{"audio.sample_rate", []string{"AUDIO_SAMPLE_RATE"}},
		{"web.addr", []string{"WEB_ADDR"}},
		{"web.static_dir", []string{"WEB_STATIC_DIR"}},
		{"voice.auto_listen", []string{"VOICE_AUTO_LISTEN"}},
	}
	for _, b := range bind {
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return Settings{}, fmt.Errorf("config: bind %s: %w", b.key, err)
		}
	}

	s := Settings{
		LogLevel:        v.GetString("log.level"),
		OpenAIAPIKey:    v.GetString("openai.api_key"),
		OpenAIBaseURL:   v.GetString("openai.base_url"),
		LLMModel:        v.GetString("llm.model"),
		SpeechModel:     v.GetString("speech.model"),
		TTSModel:        v.GetString("tts.model"),
		TTSVoice:        v.GetString("tts.voice"),
		WhisperModel:    v.GetString("whisper.model"),
		SOCKSProxy:      v.GetString("proxy.socks"),
		RobotAPIURL:     strings.TrimRight(v.GetString("robot.api_url"), "/"),
		RobotEventsURL:  v.GetString("robot.events_url"),
		EventsTransport: v.GetString("robot.events_transport"),
		AutoCheckHealth: v.GetBool("robot.auto_check_health"),
		RobotTimeout:    v.GetDuration("robot.timeout"),
		AudioBackend:    v.GetString("audio.backend"),
		SampleRate:      v.GetInt("audio.sample_rate"),
		WebAddr:         v.GetString("web.addr"),
		StaticDir:       v.GetString("web.static_dir"),
		AutoListen:      v.GetBool("voice.auto_listen"),
	}
	return s, nil
}
