package robotsim

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-kira/pkg/events"
)

// ToolFunc answers a robot-side tool call. The output is sent back in a
// "return" event.
type ToolFunc func(ctx context.Context, input json.RawMessage) (any, error)

// subscriber is one connected event consumer.
type subscriber struct {
	ID        string
	Transport events.Transport
	Connected time.Time

	send chan []byte
}

// Hub fans simulator events out to every WebSocket and SSE subscriber and
// answers tool calls arriving on the socket.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber

	toolsMu sync.RWMutex
	tools   map[string]ToolFunc
	calls   []events.CallRequest

	done chan struct{}
	stop sync.Once

	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	dropped          atomic.Uint64
}

// NewHub creates an event hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "robotsim.hub"),
		subs:   make(map[string]*subscriber),
		tools:  make(map[string]ToolFunc),
		done:   make(chan struct{}),
	}
}

// RegisterTool installs fn for calls naming tool.
func (h *Hub) RegisterTool(tool string, fn ToolFunc) {
	h.toolsMu.Lock()
	defer h.toolsMu.Unlock()
	h.tools[tool] = fn
}

// Calls returns every tool call received, oldest first.
func (h *Hub) Calls() []events.CallRequest {
	h.toolsMu.RLock()
	defer h.toolsMu.RUnlock()
	out := make([]events.CallRequest, len(h.calls))
	copy(out, h.calls)
	return out
}

// RegisterRoutes mounts /events (WebSocket) and /api/events (SSE).
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/events", websocket.New(h.handleSocket))
	app.Get("/api/events", h.handleSSE)
}

// Publish sends {type, data} to every subscriber. Slow subscribers drop
// events rather than block the simulator.
func (h *Hub) Publish(eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("robotsim: marshal %s: %w", eventType, err)
	}
	msg, err := json.Marshal(events.Event{Type: eventType, Data: raw, At: time.Now()})
	if err != nil {
		return fmt.Errorf("robotsim: marshal %s: %w", eventType, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.send <- msg:
			h.messagesSent.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber slow, dropping event", "subscriber", s.ID, "type", eventType)
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.stop.Do(func() { close(h.done) })
}

func (h *Hub) join(transport events.Transport) *subscriber {
	s := &subscriber{
		ID:        uuid.NewString(),
		Transport: transport,
		Connected: time.Now(),
		send:      make(chan []byte, 64),
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	total := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("subscriber connected", "subscriber", s.ID, "transport", transport, "total", total)
	return s
}

func (h *Hub) leave(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID)
	total := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("subscriber disconnected", "subscriber", s.ID, "total", total)
}

func (h *Hub) handleSocket(c *websocket.Conn) {
	s := h.join(events.TransportWebSocket)
	defer h.leave(s)

	// Writes go through one goroutine; tool returns are queued like events.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-s.send:
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.Close()
					return
				}
			case <-h.done:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				c.Close()
				return
			}
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.messagesReceived.Add(1)
		h.handleMessage(data)
	}
	c.Close()
	<-writerDone
}

// handleMessage answers "call" messages. Anything else is rebroadcast, which
// lets a test client inject events for the other subscribers.
func (h *Hub) handleMessage(data []byte) {
	ev := events.Parse(data)
	if ev.Type != events.TypeCall {
		if err := h.Publish(ev.Type, ev.Data); err != nil {
			h.logger.Warn("failed to rebroadcast", "error", err)
		}
		return
	}

	var req events.CallRequest
	if err := ev.Decode(&req); err != nil {
		h.logger.Warn("malformed tool call", "error", err)
		return
	}

	h.toolsMu.Lock()
	h.calls = append(h.calls, req)
	fn := h.tools[req.Tool]
	h.toolsMu.Unlock()

	if fn == nil {
		h.logger.Warn("unknown tool", "tool", req.Tool)
		return
	}

	// Run off the read loop; a slow tool must not stall the socket.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), events.DefaultAwaitTimeout)
		defer cancel()

		out, err := fn(ctx, req.Input)
		if err != nil {
			out = map[string]string{"error": err.Error()}
		}
		if out == nil {
			// Fire-and-forget tools get no return.
			return
		}
		raw, err := json.Marshal(out)
		if err != nil {
			h.logger.Warn("failed to encode tool output", "tool", req.Tool, "error", err)
			return
		}
		if err := h.Publish(events.TypeReturn, events.CallReturn{ID: req.ID, Output: raw}); err != nil {
			h.logger.Warn("failed to publish return", "tool", req.Tool, "error", err)
		}
	}()
}

// handleSSE streams events as named SSE frames. The robot's initComplete is
// sent first.
func (h *Hub) handleSSE(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	s := h.join(events.TransportSSE)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.leave(s)

		fmt.Fprintf(w, "event: %s\ndata: {}\n\n", events.TypeInitComplete)
		if err := w.Flush(); err != nil {
			return
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case msg := <-s.send:
				ev := events.Parse(msg)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
			case <-h.done:
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// Stats contains hub statistics.
type Stats struct {
	Subscribers      int    `json:"subscribers"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Dropped          uint64 `json:"dropped"`
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns hub statistics.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers:      h.SubscriberCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Dropped:          h.dropped.Load(),
	}
}
