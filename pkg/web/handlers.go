package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-kira/pkg/hub"
	"github.com/teslashibe/go-kira/pkg/voice"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "kira",
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Snapshot())
}

func (s *Server) assistant() (Assistant, error) {
	if s.cfg.Assistant == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "assistant not configured")
	}
	return s.cfg.Assistant, nil
}

func (s *Server) handleGetPrompt(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	return c.JSON(promptRequest{Prompt: a.Prompt()})
}

func (s *Server) handleSetPrompt(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	var req promptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	a.SetPrompt(req.Prompt)
	s.PublishStatus()
	return c.JSON(promptRequest{Prompt: a.Prompt()})
}

// handleSubmit runs a text turn. An empty body submits the current prompt.
// The response carries the turn's outcome.
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	var req promptRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
	}
	text := strings.TrimSpace(req.Prompt)
	if text == "" {
		text = a.Prompt()
	} else {
		a.SetPrompt(text)
	}

	s.AddLog("turn", "prompt: "+text)
	if err := a.SubmitText(c.UserContext(), text); err != nil {
		if errors.Is(err, voice.ErrClosed) {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(s.Snapshot())
}

func (s *Server) handleStartListening(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	if err := a.StartListening(c.UserContext()); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	s.AddLog("info", "listening started")
	s.PublishStatus()
	return c.JSON(s.Snapshot())
}

func (s *Server) handleStopListening(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	a.StopListening()
	s.AddLog("info", "listening stopped")
	s.PublishStatus()
	return c.JSON(s.Snapshot())
}

func (s *Server) handleStopSpeaking(c *fiber.Ctx) error {
	a, err := s.assistant()
	if err != nil {
		return err
	}
	a.StopSpeaking()
	s.PublishStatus()
	return c.JSON(s.Snapshot())
}

func (s *Server) sleeper() (Sleeper, error) {
	if s.cfg.Sleep == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "sleep mode not configured")
	}
	return s.cfg.Sleep, nil
}

func (s *Server) handleSleep(c *fiber.Ctx) error {
	sl, err := s.sleeper()
	if err != nil {
		return err
	}
	sl.GoToSleep(c.UserContext())
	return c.JSON(fiber.Map{"sleeping": sl.Sleeping()})
}

func (s *Server) handleWake(c *fiber.Ctx) error {
	sl, err := s.sleeper()
	if err != nil {
		return err
	}
	if err := sl.WakeUp(c.UserContext()); err != nil {
		// Awake regardless; only the greeting failed.
		s.AddLog("error", "wake greeting: "+err.Error())
	}
	return c.JSON(fiber.Map{"sleeping": sl.Sleeping()})
}

func (s *Server) handleCheckHealth(c *fiber.Ctx) error {
	if s.cfg.Robot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "robot not configured")
	}
	s.cfg.Robot.CheckHealth(c.UserContext())
	return c.JSON(s.Snapshot())
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	logs := make([]LogEntry, len(s.logs))
	copy(logs, s.logs)
	s.logsMu.RUnlock()
	return c.JSON(logs)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	conv := make([]ConversationEntry, len(s.conversation))
	copy(conv, s.conversation)
	s.conversationMu.RUnlock()
	return c.JSON(conv)
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := hub.Encode(s.Snapshot())
	if err != nil {
		s.logger.Warn("failed to encode status", "error", err)
		c.Close()
		return
	}
	hub.NewClient(s.statusHub, c, initial).Run()
}

func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	backlog := s.logs
	if len(backlog) > logBacklog {
		backlog = backlog[len(backlog)-logBacklog:]
	}
	initial := make([]hub.Message, 0, len(backlog))
	for _, entry := range backlog {
		if msg, err := hub.Encode(entry); err == nil {
			initial = append(initial, msg)
		}
	}
	s.logsMu.RUnlock()
	hub.NewClient(s.logHub, c, initial...).Run()
}
