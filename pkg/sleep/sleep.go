// Package sleep holds the robot's sleep mode.
//
// Asleep, the robot shows a locked TIRED face and the orchestrator keeps the
// microphone muted. Waking unlocks the face and greets the user.
package sleep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-kira/pkg/listener"
	"github.com/teslashibe/go-kira/pkg/robot"
)

// WakeGreeting is spoken after WakeUp.
const WakeGreeting = "Hi, ich bin wieder wach. Wie kann ich dir helfen?"

// Speaker says the wake greeting. *speech.Controller satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Config holds sleep mode configuration.
type Config struct {
	Robot        robot.ExpressionController
	Speaker      Speaker
	Greeting     string
	RobotTimeout time.Duration
	Logger       *slog.Logger
}

// Option is a functional option for configuring sleep mode.
type Option func(*Config)

// WithRobot sets the face controller.
func WithRobot(r robot.ExpressionController) Option {
	return func(c *Config) {
		c.Robot = r
	}
}

// WithSpeaker sets who says the wake greeting.
func WithSpeaker(s Speaker) Option {
	return func(c *Config) {
		c.Speaker = s
	}
}

// WithGreeting replaces the wake greeting. Empty disables it.
func WithGreeting(text string) Option {
	return func(c *Config) {
		c.Greeting = text
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
		Greeting:     WakeGreeting,
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

// Mode tracks whether the robot is asleep.
type Mode struct {
	cfg      *Config
	logger   *slog.Logger
	onChange *listener.Registry[bool]

	mu       sync.Mutex
	sleeping bool
}

// New creates an awake Mode.
func New(opts ...Option) *Mode {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "sleep.mode")

	return &Mode{
		cfg:      cfg,
		logger:   logger,
		onChange: listener.New[bool]("sleep.change", logger),
	}
}

// Sleeping reports whether the robot is asleep.
func (m *Mode) Sleeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleeping
}

// OnChange registers fn, called with the new state after every transition.
func (m *Mode) OnChange(fn func(sleeping bool)) listener.Cancel {
	return m.onChange.AddFunc(fn)
}

// GoToSleep locks the TIRED face. Calling it while asleep is a no-op.
func (m *Mode) GoToSleep(ctx context.Context) {
	if !m.transition(true) {
		return
	}
	m.logger.Info("going to sleep")

	if m.cfg.Robot != nil {
		rctx, cancel := m.robotCtx(ctx)
		if err := m.cfg.Robot.LockExpression(rctx, robot.ExpressionTired); err != nil {
			m.logger.Warn("failed to lock tired face", "error", err)
		}
		cancel()
	}
	m.onChange.Notify(ctx, true)
}

// WakeUp unlocks the face, resets it and says the greeting. Calling it while
// awake is a no-op. A greeting failure is returned after listeners ran.
func (m *Mode) WakeUp(ctx context.Context) error {
	if !m.transition(false) {
		return nil
	}
	m.logger.Info("waking up")

	if m.cfg.Robot != nil {
		m.cfg.Robot.UnlockExpression()
		rctx, cancel := m.robotCtx(ctx)
		if err := m.cfg.Robot.SetExpression(rctx, robot.ExpressionDefault); err != nil {
			m.logger.Warn("failed to reset face", "error", err)
		}
		cancel()
	}
	m.onChange.Notify(ctx, false)

	if m.cfg.Speaker == nil || m.cfg.Greeting == "" {
		return nil
	}
	return m.cfg.Speaker.Speak(ctx, m.cfg.Greeting)
}

// Toggle switches between the two states.
func (m *Mode) Toggle(ctx context.Context) error {
	if m.Sleeping() {
		return m.WakeUp(ctx)
	}
	m.GoToSleep(ctx)
	return nil
}

func (m *Mode) transition(sleeping bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sleeping == sleeping {
		return false
	}
	m.sleeping = sleeping
	return true
}

func (m *Mode) robotCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RobotTimeout)
}
