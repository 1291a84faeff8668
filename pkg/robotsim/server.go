package robotsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/robot"
)

// DefaultAddr matches the robot's API port.
const DefaultAddr = ":8787"

// Config holds simulator configuration.
type Config struct {
	Addr string

	// SpeakRate is how long the simulated robot takes per character of
	// speech before onSpeakComplete fires.
	SpeakRate time.Duration

	Debug  bool
	Logger *slog.Logger
}

// Option is a functional option for configuring the simulator.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithSpeakRate sets the per-character speaking time.
func WithSpeakRate(d time.Duration) Option {
	return func(c *Config) {
		c.SpeakRate = d
	}
}

// WithDebug enables request logging.
func WithDebug(enabled bool) Option {
	return func(c *Config) {
		c.Debug = enabled
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
		Addr:      DefaultAddr,
		SpeakRate: 50 * time.Millisecond,
		Logger:    slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Server is the simulated robot.
type Server struct {
	cfg    *Config
	app    *fiber.App
	robot  *Robot
	hub    *Hub
	logger *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var queued = statusResponse{Status: "queued"}

// New creates a simulator with the default robot-side tools registered.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		robot:  NewRobot(),
		hub:    NewHub(cfg.Logger),
		logger: cfg.Logger.With("component", "robotsim.server"),
	}

	// Commands and scheduled events outlive the request, so ctx values
	// must not alias fasthttp's buffers.
	app := fiber.New(fiber.Config{
		AppName:               "robot-sim",
		DisableStartupMessage: true,
		Immutable:             true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,X-Requested-With,Authorization",
	}))
	if cfg.Debug {
		app.Use(fiberlogger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Status: "ok"})
	})

	s.hub.RegisterRoutes(app)

	system := app.Group("/api/system")
	system.Get("/battery", func(c *fiber.Ctx) error { return c.JSON(s.robot.Battery()) })
	system.Get("/device", s.handleDevice)
	system.Get("/connectivity", func(c *fiber.Ctx) error {
		return c.JSON(robot.Connectivity{Connected: true, Type: "wifi"})
	})
	system.Get("/memory", func(c *fiber.Ctx) error {
		return c.JSON(robot.Memory{AvailMem: 1 << 30, TotalMem: 2 << 30, Threshold: 128 << 20})
	})
	system.Get("/storage", func(c *fiber.Ctx) error {
		return c.JSON(robot.Storage{TotalBytes: 32 << 30, AvailableBytes: 20 << 30})
	})

	dialog := app.Group("/api/dialog")
	dialog.Post("/speak", s.handleSpeak)
	dialog.Post("/start_speak_animation", s.command(nil))
	dialog.Post("/stop_speak", s.command(func(st *State) {
		st.Speaking = false
	}))
	dialog.Post("/voice_trigger", s.toggle(func(st *State, on bool) { st.VoiceTrigger = on }))
	dialog.Post("/head_action", s.toggle(func(st *State, on bool) { st.HeadAction = on }))

	face := app.Group("/api/face")
	face.Post("/expression", s.handleExpression)
	face.Post("/expression_and_speak", s.handleExpressionAndSpeak)

	utility := app.Group("/api/utility")
	utility.Post("/follow_face", s.command(func(st *State) {
		st.Following = "face"
	}))
	utility.Post("/follow_object", s.command(func(st *State) {
		st.Following = "object"
	}))
	utility.Post("/stop_following", s.command(func(st *State) {
		st.Following = ""
	}))
	utility.Post("/track_face", s.command(func(st *State) {
		st.Following = "track"
	}))
	utility.Post("/look_at_user", s.handleLookAtUser)
	utility.Post("/play_action", s.handlePlayAction)
	utility.Post("/play_emotional_action", s.handlePlayEmotionalAction)
	utility.Get("/get_blue_light_filter_enable", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Status: strconv.FormatBool(s.robot.State().BlueLightFilter)})
	})
	utility.Get("/get_blue_light_filter_mode", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Status: s.robot.State().BlueLightMode})
	})
	utility.Post("/set_blue_light_filter_mode", s.handleSetBlueLightMode)

	sim := app.Group("/sim")
	sim.Get("/state", func(c *fiber.Ctx) error { return c.JSON(s.robot.State()) })
	sim.Get("/commands", func(c *fiber.Ctx) error { return c.JSON(s.robot.Commands()) })
	sim.Get("/stats", func(c *fiber.Ctx) error { return c.JSON(s.hub.Stats()) })
	sim.Post("/events/:type", s.handleInject)

	s.app = app
	s.registerTools()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Robot returns the simulated device state.
func (s *Server) Robot() *Robot { return s.robot }

// Hub returns the event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves on ln (or on Addr when ln is nil) until ctx is done.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if ln != nil {
			errCh <- s.app.Listener(ln)
			return
		}
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	addr := s.cfg.Addr
	if ln != nil {
		addr = ln.Addr().String()
	}
	s.logger.Info("robot simulator listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("shutdown error", "error", err)
	}
	return nil
}

// param reads a form field, falling back to the query string.
func param(c *fiber.Ctx, name string) string {
	if v := c.FormValue(name); v != "" {
		return v
	}
	return c.Query(name)
}

func boolParam(c *fiber.Ctx, name string) bool {
	return strings.EqualFold(param(c, name), "true")
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: msg})
}

// command accepts a POST, applies fn and answers {"status":"queued"}.
// Validation happens before command is reached.
func (s *Server) command(fn func(st *State)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cmd := Command{Path: c.Path(), Fields: fields(c)}
		st := s.robot.Update(cmd, fn)
		s.publish(events.TypeStateChange, map[string]any{"path": cmd.Path, "state": st})
		return c.JSON(queued)
	}
}

// toggle is a command driven by the boolean "enable" field.
func (s *Server) toggle(set func(st *State, on bool)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		on := boolParam(c, "enable")
		return s.command(func(st *State) { set(st, on) })(c)
	}
}

func fields(c *fiber.Ctx) map[string]string {
	out := map[string]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		out[string(k)] = string(v)
	})
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		if _, ok := out[string(k)]; !ok {
			out[string(k)] = string(v)
		}
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Server) publish(eventType string, data any) {
	if err := s.hub.Publish(eventType, data); err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

func (s *Server) handleDevice(c *fiber.Ctx) error {
	return c.JSON(robot.DeviceInfo{
		Manufacturer:   "asus",
		Brand:          "asus",
		Model:          "Zenbo",
		Device:         "sim",
		Product:        "robot-sim",
		Hardware:       "go",
		AndroidVersion: "6.0.1",
		SDKInt:         23,
	})
}

func (s *Server) handleSpeak(c *fiber.Ctx) error {
	text := param(c, "text")
	if text == "" {
		return badRequest(c, "Field 'text' is required")
	}
	return s.command(func(st *State) {
		s.speak(st, text)
	})(c)
}

// speak marks the robot speaking and schedules onSpeakComplete.
func (s *Server) speak(st *State, text string) {
	st.Speaking = true
	st.LastUtterance = text
	d := time.Duration(len([]rune(text))) * s.cfg.SpeakRate
	time.AfterFunc(d, func() {
		if s.robot.finishSpeaking(text) {
			s.publish(events.TypeSpeakComplete, map[string]string{"utterance": text, "error_code": ""})
		}
	})
}

func parseFace(v string) (robot.Expression, error) {
	e, ok := robot.ParseExpression(v)
	if !ok {
		return "", fmt.Errorf("robotsim: invalid expression %q", v)
	}
	return e, nil
}

func (s *Server) handleExpression(c *fiber.Ctx) error {
	v := param(c, "expression")
	if v == "" {
		return badRequest(c, "Field 'expression' is required")
	}
	e, err := parseFace(v)
	if err != nil {
		return badRequest(c, "Invalid 'expression' value")
	}
	return s.command(func(st *State) {
		st.Expression = e
	})(c)
}

func (s *Server) handleExpressionAndSpeak(c *fiber.Ctx) error {
	v, text := param(c, "expression"), param(c, "text")
	if v == "" || text == "" {
		return badRequest(c, "Fields 'expression' and 'text' are required")
	}
	e, err := parseFace(v)
	if err != nil {
		return badRequest(c, "Invalid 'expression' value")
	}
	return s.command(func(st *State) {
		st.Expression = e
		s.speak(st, text)
	})(c)
}

func (s *Server) handleLookAtUser(c *fiber.Ctx) error {
	v := param(c, "doa")
	if v == "" {
		return badRequest(c, "Field 'doa' is required")
	}
	doa, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return badRequest(c, "Invalid 'doa' value")
	}
	return s.command(func(st *State) {
		st.LookDOA = doa
	})(c)
}

func (s *Server) handlePlayAction(c *fiber.Ctx) error {
	v := param(c, "number")
	if v == "" {
		return badRequest(c, "Field 'number' is required")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return badRequest(c, "Invalid 'number' value")
	}
	return s.command(func(st *State) {
		st.LastAction = n
	})(c)
}

func (s *Server) handlePlayEmotionalAction(c *fiber.Ctx) error {
	faceStr, actionStr := param(c, "face"), param(c, "action")
	if faceStr == "" || actionStr == "" {
		return badRequest(c, "Fields 'face' and 'action' are required")
	}
	e, ferr := parseFace(faceStr)
	n, aerr := strconv.Atoi(actionStr)
	if ferr != nil || aerr != nil {
		return badRequest(c, "Invalid 'face' or 'action' value")
	}
	return s.command(func(st *State) {
		st.Expression = e
		st.LastAction = n
	})(c)
}

func (s *Server) handleSetBlueLightMode(c *fiber.Ctx) error {
	mode := param(c, "mode")
	if mode == "" {
		return badRequest(c, "Field 'mode' is required")
	}
	return s.command(func(st *State) {
		st.BlueLightMode = mode
		st.BlueLightFilter = mode != "0"
	})(c)
}

// handleInject publishes the JSON body as an event of the named type, so
// developers can fake onEventUserUtterance and friends.
func (s *Server) handleInject(c *fiber.Ctx) error {
	var data json.RawMessage
	if body := c.Body(); len(body) > 0 {
		if !json.Valid(body) {
			return badRequest(c, "body must be JSON")
		}
		data = json.RawMessage(body)
	} else {
		data = json.RawMessage("{}")
	}
	s.publish(c.Params("type"), data)
	return c.JSON(queued)
}

func (s *Server) registerTools() {
	s.hub.RegisterTool("get_battery", func(context.Context, json.RawMessage) (any, error) {
		return s.robot.Battery(), nil
	})
	s.hub.RegisterTool("play_action", func(_ context.Context, input json.RawMessage) (any, error) {
		var args struct {
			Number int `json:"number"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, err
		}
		s.robot.Update(Command{Path: "tool:play_action"}, func(st *State) { st.LastAction = args.Number })
		return nil, nil
	})
	s.hub.RegisterTool("set_expression", func(_ context.Context, input json.RawMessage) (any, error) {
		var args struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, err
		}
		e, err := parseFace(args.Expression)
		if err != nil {
			return nil, err
		}
		s.robot.Update(Command{Path: "tool:set_expression"}, func(st *State) { st.Expression = e })
		return nil, nil
	})
}
