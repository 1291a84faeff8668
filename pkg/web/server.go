// Package web serves the Kira control page: prompt submission, listening
// and sleep controls, a live status feed and Prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-kira/pkg/hub"
	"github.com/teslashibe/go-kira/pkg/listener"
	"github.com/teslashibe/go-kira/pkg/state"
	"github.com/teslashibe/go-kira/pkg/voice"
)

const (
	maxLogs         = 500
	maxConversation = 100

	// logBacklog is replayed to new /ws/logs clients. It must stay below the
	// hub client's send buffer.
	logBacklog = 200
)

// Assistant is the orchestrator surface the page drives. *voice.Agent
// satisfies it.
type Assistant interface {
	SubmitText(ctx context.Context, text string) error
	Prompt() string
	SetPrompt(p string)
	StartListening(ctx context.Context) error
	StopListening()
	StopSpeaking()
	Status() voice.Status
	Metrics() *voice.Metrics

	OnUserPrompt(fn listener.Handler[voice.Turn]) listener.Cancel
	OnAgentComplete(fn listener.Handler[voice.Turn]) listener.Cancel
	OnAgentError(fn listener.Handler[voice.TurnError]) listener.Cancel
}

// Sleeper toggles sleep mode. *sleep.Mode satisfies it.
type Sleeper interface {
	GoToSleep(ctx context.Context)
	WakeUp(ctx context.Context) error
	Sleeping() bool
	OnChange(fn func(sleeping bool)) listener.Cancel
}

// Health reports robot reachability. *robot.Client satisfies it.
type Health interface {
	CheckHealth(ctx context.Context)
	Healthy() bool
	HealthErr() error
}

// Status is the payload of GET /api/status and /ws/status.
type Status struct {
	voice.Status
	Flags         state.Snapshot `json:"flags"`
	RobotHealthy  bool           `json:"robotHealthy"`
	RobotError    string         `json:"robotError,omitempty"`
	LastLatency   string         `json:"lastLatency,omitempty"`
	StatusClients int            `json:"statusClients"`
}

// LogEntry is a line in the page's activity log.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, turn, error, sleep
	Message string `json:"message"`
}

// ConversationEntry is a message in the conversation panel.
type ConversationEntry struct {
	Time      string `json:"time"`
	Role      string `json:"role"` // user, assistant
	Message   string `json:"message"`
	CommandID uint64 `json:"commandId"`
	Source    string `json:"source,omitempty"`
}

// Config holds server configuration.
type Config struct {
	Addr           string
	StaticDir      string
	StatusInterval time.Duration
	Debug          bool

	Assistant Assistant
	Sleep     Sleeper
	Robot     Health
	Shared    *state.Shared

	Logger *slog.Logger
}

// Option is a functional option for configuring the server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithStaticDir serves files from dir at /.
func WithStaticDir(dir string) Option {
	return func(c *Config) {
		c.StaticDir = dir
	}
}

// WithStatusInterval sets how often status is pushed without a change.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Config) {
		c.StatusInterval = d
	}
}

// WithDebug enables request logging.
func WithDebug(enabled bool) Option {
	return func(c *Config) {
		c.Debug = enabled
	}
}

// WithAssistant sets the orchestrator.
func WithAssistant(a Assistant) Option {
	return func(c *Config) {
		c.Assistant = a
	}
}

// WithSleep sets the sleep mode.
func WithSleep(s Sleeper) Option {
	return func(c *Config) {
		c.Sleep = s
	}
}

// WithRobot sets the robot health source.
func WithRobot(r Health) Option {
	return func(c *Config) {
		c.Robot = r
	}
}

// WithShared sets the shared flags shown on the page.
func WithShared(s *state.Shared) Option {
	return func(c *Config) {
		c.Shared = s
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
		Addr:           ":8080",
		StatusInterval: time.Second,
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Server is the control page server.
type Server struct {
	cfg    *Config
	app    *fiber.App
	logger *slog.Logger

	statusHub *hub.Hub
	logHub    *hub.Hub

	logs   []LogEntry
	logsMu sync.RWMutex

	conversation   []ConversationEntry
	conversationMu sync.RWMutex

	subs []listener.Cancel
}

// NewServer creates the server and subscribes to the orchestrator and sleep
// mode. Assistant is required.
func NewServer(opts ...Option) *Server {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Shared == nil {
		cfg.Shared = state.New()
	}
	logger := cfg.Logger.With("component", "web.server")

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		statusHub:    hub.New("status", cfg.Logger),
		logHub:       hub.New("logs", cfg.Logger),
		logs:         make([]LogEntry, 0, maxLogs),
		conversation: make([]ConversationEntry, 0, maxConversation),
	}

	app := fiber.New(fiber.Config{
		AppName:               "kira",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(fiberlogger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(s.metricsHandler()))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/prompt", s.handleGetPrompt)
	api.Put("/prompt", s.handleSetPrompt)
	api.Post("/prompt", s.handleSubmit)
	api.Post("/listen/start", s.handleStartListening)
	api.Post("/listen/stop", s.handleStopListening)
	api.Post("/speech/stop", s.handleStopSpeaking)
	api.Post("/sleep", s.handleSleep)
	api.Post("/wake", s.handleWake)
	api.Post("/robot/health", s.handleCheckHealth)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/conversation", s.handleGetConversation)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	s.subscribe()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run starts the hubs and the status ticker, then serves on ln (or on Addr
// when ln is nil) until ctx is done.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.pushStatus(ctx)

	errCh := make(chan error, 1)
	go func() {
		if ln != nil {
			errCh <- s.app.Listener(ln)
			return
		}
		errCh <- s.app.Listen(s.cfg.Addr)
	}()
	s.logger.Info("web server listening", "addr", s.addr(ln))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("shutdown error", "error", err)
	}
	return nil
}

func (s *Server) addr(ln net.Listener) string {
	if ln != nil {
		return ln.Addr().String()
	}
	return s.cfg.Addr
}

// Close detaches from the orchestrator and sleep mode.
func (s *Server) Close() {
	for _, unsub := range s.subs {
		unsub()
	}
	s.subs = nil
}

func (s *Server) subscribe() {
	a := s.cfg.Assistant
	if a == nil {
		return
	}
	s.subs = append(s.subs,
		a.OnUserPrompt(func(_ context.Context, t voice.Turn) error {
			s.AddConversation(ConversationEntry{Role: "user", Message: t.Input, CommandID: t.CommandID, Source: string(t.Source)})
			s.PublishStatus()
			return nil
		}),
		a.OnAgentComplete(func(_ context.Context, t voice.Turn) error {
			if t.Output != "" {
				s.AddConversation(ConversationEntry{Role: "assistant", Message: t.Output, CommandID: t.CommandID, Source: string(t.Source)})
			}
			s.PublishStatus()
			return nil
		}),
		a.OnAgentError(func(_ context.Context, te voice.TurnError) error {
			s.AddLog("error", "agent: "+te.Err.Error())
			s.PublishStatus()
			return nil
		}),
	)
	if sl := s.cfg.Sleep; sl != nil {
		s.subs = append(s.subs, sl.OnChange(func(sleeping bool) {
			msg := "awake"
			if sleeping {
				msg = "asleep"
			}
			s.AddLog("sleep", msg)
			s.PublishStatus()
		}))
	}
}

// Snapshot assembles the current status.
func (s *Server) Snapshot() Status {
	st := Status{
		Flags:         s.cfg.Shared.Snapshot(),
		StatusClients: s.statusHub.ClientCount(),
	}
	if a := s.cfg.Assistant; a != nil {
		st.Status = a.Status()
		if last := a.Metrics().Last(); last.CommandID != 0 {
			st.LastLatency = last.FormatLatency()
		}
	}
	if r := s.cfg.Robot; r != nil {
		st.RobotHealthy = r.Healthy()
		if err := r.HealthErr(); err != nil {
			st.RobotError = err.Error()
		}
	}
	return st
}

// PublishStatus pushes the current status to every /ws/status client.
func (s *Server) PublishStatus() {
	if err := s.statusHub.BroadcastJSON(s.Snapshot()); err != nil {
		s.logger.Warn("failed to encode status", "error", err)
	}
}

func (s *Server) pushStatus(ctx context.Context) {
	if s.cfg.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() > 0 {
				s.PublishStatus()
			}
		}
	}
}

// AddLog appends a log entry and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	if err := s.logHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("failed to encode log entry", "error", err)
	}
}

// AddConversation appends a conversation entry.
func (s *Server) AddConversation(entry ConversationEntry) {
	if entry.Time == "" {
		entry.Time = time.Now().Format("15:04:05")
	}
	s.conversationMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > maxConversation {
		s.conversation = s.conversation[1:]
	}
	s.conversationMu.Unlock()
}

func (s *Server) metricsHandler() http.Handler {
	if s.cfg.Assistant == nil {
		return http.NotFoundHandler()
	}
	return s.cfg.Assistant.Metrics().Handler()
}
