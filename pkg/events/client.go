package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-kira/internal/httpc"
	"github.com/teslashibe/go-kira/pkg/listener"
)

// Client is a reference-counted subscription to the robot event stream.
// The connection is opened by the first Acquire and closed when the last
// holder calls Release.
type Client struct {
	cfg    *Config
	logger *slog.Logger

	anyEvent *listener.Registry[Event]

	mu      sync.Mutex
	byType  map[string]*listener.Registry[Event]
	refs    int
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *websocket.Conn
	lastErr error

	writeMu sync.Mutex

	state atomic.Int32
	last  atomic.Pointer[Event]
}

// NewClient creates an event client. It does not connect until Acquire.
func NewClient(opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.NewClient(0)
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = DefaultAwaitTimeout
	}

	logger := cfg.Logger.With("component", "events."+string(cfg.Transport))
	return &Client{
		cfg:      cfg,
		logger:   logger,
		anyEvent: listener.New[Event]("event", logger),
		byType:   make(map[string]*listener.Registry[Event]),
	}
}

// URL returns the stream URL this client connects to.
func (c *Client) URL() string { return c.cfg.URL }

// Acquire registers a holder and connects if this is the first one.
func (c *Client) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs++
	if c.refs > 1 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Release drops a holder and disconnects when none remain.
func (c *Client) Release() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		return
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}

	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	c.state.Store(int32(StateDestroyed))
	c.logger.Info("event stream released")
}

// Close releases every holder.
func (c *Client) Close() error {
	for c.Holders() > 0 {
		c.Release()
	}
	return nil
}

// Holders returns the current reference count.
func (c *Client) Holders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}

// State returns the connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// IsConnected reports whether the stream is live.
func (c *Client) IsConnected() bool { return c.State() == StateReady }

// Err returns the last connection error, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastEvent returns the most recent event and whether one has arrived.
func (c *Client) LastEvent() (Event, bool) {
	ev := c.last.Load()
	if ev == nil {
		return Event{}, false
	}
	return *ev, true
}

// OnEvent registers a handler for every event.
func (c *Client) OnEvent(fn func(Event)) listener.Cancel {
	return c.anyEvent.AddFunc(fn)
}

// OnEventType registers a handler for events of one type.
// An empty type registers nothing.
func (c *Client) OnEventType(eventType string, fn func(Event)) listener.Cancel {
	if eventType == "" || fn == nil {
		return func() {}
	}

	c.mu.Lock()
	reg, ok := c.byType[eventType]
	if !ok {
		reg = listener.New[Event](eventType, c.logger)
		c.byType[eventType] = reg
	}
	c.mu.Unlock()

	cancel := reg.AddFunc(fn)
	return func() {
		cancel()
		c.mu.Lock()
		if cur, ok := c.byType[eventType]; ok && cur == reg && reg.Len() == 0 {
			delete(c.byType, eventType)
		}
		c.mu.Unlock()
	}
}

// Dispatch feeds ev to every matching handler, as if it arrived on the stream.
func (c *Client) Dispatch(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.last.Store(&ev)

	ctx := context.Background()
	c.anyEvent.Notify(ctx, ev)

	c.mu.Lock()
	reg := c.byType[ev.Type]
	c.mu.Unlock()
	if reg != nil {
		reg.Notify(ctx, ev)
	}
}

// Send writes a typed message to the robot over the WebSocket.
func (c *Client) Send(ctx context.Context, eventType string, data any) error {
	if c.cfg.Transport == TransportSSE {
		return ErrUnsupportedTransport
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	msg, err := json.Marshal(Event{Type: eventType, Data: raw, At: time.Now()})
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		c.state.Store(int32(StateInitializing))

		var err error
		switch c.cfg.Transport {
		case TransportSSE:
			err = c.readSSE(ctx)
		default:
			err = c.readWebSocket(ctx)
		}

		if ctx.Err() != nil {
			return
		}

		c.state.Store(int32(StateUninitialized))
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("event stream disconnected", "url", c.cfg.URL, "error", err, "retry_in", c.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) readWebSocket(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	c.conn = conn
	c.lastErr = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	c.state.Store(int32(StateReady))
	c.logger.Info("event stream connected", "url", c.cfg.URL)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.Dispatch(Parse(msg))
	}
}
