package kira

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"slices"

	"github.com/teslashibe/go-kira/internal/httpc"
	"github.com/teslashibe/go-kira/pkg/agent"
	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/robot"
	"github.com/teslashibe/go-kira/pkg/sleep"
	"github.com/teslashibe/go-kira/pkg/speech"
	"github.com/teslashibe/go-kira/pkg/state"
	"github.com/teslashibe/go-kira/pkg/stt"
	"github.com/teslashibe/go-kira/pkg/tts"
	"github.com/teslashibe/go-kira/pkg/vad"
	"github.com/teslashibe/go-kira/pkg/voice"
	"github.com/teslashibe/go-kira/pkg/web"
)

// Option overrides a collaborator the app would otherwise build from Config.
type Option func(*overrides)

type overrides struct {
	runner      agent.Runner
	transcriber stt.Transcriber
	provider    tts.Provider
	source      audioio.SourceFactory
	sink        audioio.Sink
	listener    net.Listener
	logger      *slog.Logger
}

// WithRunner replaces the OpenAI agent runner.
func WithRunner(r agent.Runner) Option {
	return func(o *overrides) { o.runner = r }
}

// WithTranscriber replaces the transcription backend.
func WithTranscriber(t stt.Transcriber) Option {
	return func(o *overrides) { o.transcriber = t }
}

// WithTTSProvider replaces the speech synthesis backend.
func WithTTSProvider(p tts.Provider) Option {
	return func(o *overrides) { o.provider = p }
}

// WithAudioSource replaces the microphone.
func WithAudioSource(f audioio.SourceFactory) Option {
	return func(o *overrides) { o.source = f }
}

// WithAudioSink replaces the speaker.
func WithAudioSink(s audioio.Sink) Option {
	return func(o *overrides) { o.sink = s }
}

// WithListener serves the web front-end on ln instead of Config.WebAddr.
func WithListener(ln net.Listener) Option {
	return func(o *overrides) { o.listener = ln }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *overrides) { o.logger = logger }
}

// App is the main application. It owns every component and their lifecycle.
type App struct {
	config Config
	opts   overrides
	logger *slog.Logger

	shared      *state.Shared
	events      *events.Client
	robot       *robot.Client
	agent       *agent.Adapter
	transcriber stt.Transcriber
	stt         *stt.Adapter
	speech      *speech.Controller
	detector    *vad.Detector
	sleep       *sleep.Mode
	voice       *voice.Agent
	web         *web.Server

	stopListen func()
}

// New validates cfg and creates the application. Call Init before Run.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{config: cfg}
	for _, opt := range opts {
		opt(&a.opts)
	}
	a.logger = a.opts.logger
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "kira.app")
	return a, nil
}

// Init builds every component. Backend setup failures are logged and leave
// the affected stage unconfigured rather than failing startup.
func (a *App) Init() error {
	cfg := a.config
	logger := a.opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	aiClient, err := httpc.NewSOCKSClient(cfg.SOCKSProxy, httpc.DefaultTimeout)
	if err != nil {
		return err
	}

	a.shared = state.New()

	a.events = events.NewClient(
		events.WithURL(cfg.RobotEventsURL),
		events.WithTransport(cfg.EventsTransport),
		events.WithLogger(logger),
	)

	a.robot = robot.NewClient(
		robot.WithBaseURL(cfg.RobotAPIURL),
		robot.WithHTTPClient(httpc.NewClient(cfg.RobotTimeout)),
		robot.WithShared(a.shared),
		robot.WithAutoCheckHealth(cfg.AutoCheckHealth),
		robot.WithEvents(a.events),
		robot.WithLogger(logger),
	)

	runner := a.opts.runner
	if runner == nil {
		runner = a.newRunner(aiClient, logger)
	}
	a.agent = agent.NewAdapter(agent.WithRunner(runner), agent.WithLogger(logger))

	a.transcriber = a.opts.transcriber
	if a.transcriber == nil {
		a.transcriber = a.newTranscriber(aiClient, logger)
	}
	a.stt = stt.NewAdapter(
		stt.WithTranscriber(a.transcriber),
		stt.WithShared(a.shared),
		stt.WithLogger(logger),
	)

	provider := a.opts.provider
	if provider == nil {
		provider = a.newProvider(aiClient, logger)
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = cfg.AudioBackend
	audioCfg.SampleRate = cfg.SampleRate

	sink := a.opts.sink
	if sink == nil {
		if sink, err = audioio.NewSink(audioCfg, logger); err != nil {
			return err
		}
	}
	a.speech = speech.New(
		speech.WithProvider(provider),
		speech.WithSink(sink),
		speech.WithRobot(a.robot),
		speech.WithLogger(logger),
	)

	source := a.opts.source
	if source == nil {
		source = sourceFactory(audioCfg, logger)
	}
	a.detector = vad.New(
		vad.WithSource(source),
		vad.WithRobot(a.robot),
		vad.WithShared(a.shared),
		vad.WithLogger(logger),
	)
	a.stopListen = a.stt.Listen(a.detector)

	a.sleep = sleep.New(
		sleep.WithRobot(a.robot),
		sleep.WithSpeaker(a.speech),
		sleep.WithLogger(logger),
	)

	a.voice, err = voice.New(
		voice.WithResponder(a.agent),
		voice.WithMicrophone(a.detector),
		voice.WithTranscriber(a.stt),
		voice.WithSpeaker(a.speech),
		voice.WithSleep(a.sleep),
		voice.WithPrompt(cfg.Prompt),
		voice.WithAutoStartListening(cfg.AutoListen),
		voice.WithMetrics(voice.NewMetrics("kira")),
		voice.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	a.web = web.NewServer(
		web.WithAddr(cfg.WebAddr),
		web.WithStaticDir(cfg.StaticDir),
		web.WithDebug(cfg.Debug),
		web.WithAssistant(a.voice),
		web.WithSleep(a.sleep),
		web.WithRobot(a.robot),
		web.WithShared(a.shared),
		web.WithLogger(logger),
	)

	if cfg.RemoteTools {
		a.events.Acquire()
	}

	a.logger.Info("initialized",
		"robot", cfg.RobotAPIURL,
		"events", cfg.RobotEventsURL,
		"audio", cfg.AudioBackend,
		"agent", runner != nil,
		"transcriber", a.transcriber != nil,
		"tts", provider != nil,
	)
	return nil
}

func (a *App) newRunner(hc *http.Client, logger *slog.Logger) agent.Runner {
	opts := []agent.Option{
		agent.WithAPIKey(a.config.OpenAIKey),
		agent.WithBaseURL(a.config.OpenAIBaseURL),
		agent.WithHTTPClient(hc),
		agent.WithModel(a.config.LLMModel),
		agent.WithLogger(logger),
	}
	if a.config.RemoteTools {
		opts = append(opts, agent.WithTools(agent.RemoteTools(a.events, RemoteTools...)...))
	}
	r, err := agent.NewOpenAI(opts...)
	if err != nil {
		a.logger.Warn("agent unavailable", "error", err)
		return nil
	}
	return r
}

func (a *App) newTranscriber(hc *http.Client, logger *slog.Logger) stt.Transcriber {
	if a.config.WhisperModel != "" {
		w, err := stt.NewWhisper(stt.WithModelPath(a.config.WhisperModel), stt.WithLogger(logger))
		if err == nil {
			return w
		}
		a.logger.Warn("whisper unavailable, falling back to OpenAI transcription", "error", err)
	}
	t, err := stt.NewOpenAI(
		stt.WithAPIKey(a.config.OpenAIKey),
		stt.WithBaseURL(a.config.OpenAIBaseURL),
		stt.WithModel(a.config.SpeechModel),
		stt.WithHTTPClient(hc),
		stt.WithLogger(logger),
	)
	if err != nil {
		a.logger.Warn("transcription unavailable", "error", err)
		return nil
	}
	return t
}

func (a *App) newProvider(hc *http.Client, logger *slog.Logger) tts.Provider {
	p, err := tts.NewOpenAI(
		tts.WithAPIKey(a.config.OpenAIKey),
		tts.WithBaseURL(a.config.OpenAIBaseURL),
		tts.WithModel(a.config.TTSModel),
		tts.WithVoice(a.config.TTSVoice),
		tts.WithHTTPClient(hc),
		tts.WithLogger(logger),
	)
	if err != nil {
		a.logger.Warn("speech synthesis unavailable", "error", err)
		return nil
	}
	return p
}

// sourceFactory opens the configured microphone. The mock backend captures
// silence so a headless run never hears phantom speech.
func sourceFactory(cfg audioio.Config, logger *slog.Logger) audioio.SourceFactory {
	mock := cfg.Backend == audioio.BackendMock ||
		(cfg.Backend == audioio.BackendAuto && !slices.Contains(audioio.AvailableBackends(), audioio.BackendPortAudio))
	if !mock {
		return audioio.Factory(cfg, logger)
	}
	return func(context.Context) (audioio.Source, error) {
		return audioio.NewMockSource(cfg, logger, audioio.WithSineWave(0, 0)), nil
	}
}

// Run checks robot health, starts listening and serves the web front-end
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.robot.Attach(ctx)
	if err := a.voice.Start(ctx); err != nil {
		a.logger.Warn("microphone unavailable, text prompts only", "error", err)
		a.web.AddLog("error", "microphone: "+err.Error())
	}
	a.web.AddLog("info", "Kira started")
	return a.web.Run(ctx, a.opts.listener)
}

// Shutdown stops every component in reverse dependency order.
func (a *App) Shutdown() {
	if a.voice != nil {
		a.voice.Close()
	}
	if a.web != nil {
		a.web.Close()
	}
	if a.stopListen != nil {
		a.stopListen()
	}
	if a.detector != nil {
		a.detector.Destroy()
	}
	if a.stt != nil {
		a.stt.Wait()
	}
	if a.speech != nil {
		if err := a.speech.Close(); err != nil {
			a.logger.Warn("failed to close speech", "error", err)
		}
	}
	if a.transcriber != nil {
		if err := a.transcriber.Close(); err != nil {
			a.logger.Warn("failed to close transcriber", "error", err)
		}
	}
	if a.events != nil {
		a.events.Close()
	}
	a.logger.Info("shut down")
}

// Voice returns the orchestrator.
func (a *App) Voice() *voice.Agent { return a.voice }

// Robot returns the robot client.
func (a *App) Robot() *robot.Client { return a.robot }

// Sleep returns the sleep mode.
func (a *App) Sleep() *sleep.Mode { return a.sleep }

// Web returns the web server.
func (a *App) Web() *web.Server { return a.web }

// Shared returns the process-wide flags.
func (a *App) Shared() *state.Shared { return a.shared }

// Events returns the robot event stream client.
func (a *App) Events() *events.Client { return a.events }
