package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-kira/internal/log"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
		wantData string
	}{
		{"typed", `{"type":"onResult","data":{"cmd":1}}`, "onResult", `{"cmd":1}`},
		{"missing type", `{"data":{"x":1}}`, "message", `{"x":1}`},
		{"empty type", `{"type":"","data":2}`, "message", `2`},
		{"missing data", `{"type":"initComplete","serial":3}`, "initComplete", `{"type":"initComplete","serial":3}`},
		{"null data", `{"type":"a","data":null}`, "a", `{"type":"a","data":null}`},
		{"unparseable", `hello robot`, "message", `"hello robot"`},
		{"scalar", `42`, "message", `42`},
		{"empty", ``, "message", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Parse([]byte(tt.payload))
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}
			if string(ev.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", ev.Data, tt.wantData)
			}
		})
	}
}

// wsServer accepts one connection at a time and exposes it to the test.
type wsServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/events"
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestClient(url string, opts ...Option) *Client {
	base := []Option{
		WithURL(url),
		WithLogger(log.Discard()),
		WithReconnectDelay(10 * time.Millisecond),
	}
	return NewClient(append(base, opts...)...)
}

func TestClient_WebSocketDispatch(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(srv.wsURL())
	defer c.Close()

	var mu sync.Mutex
	var anyTypes []string
	typed := make(chan Event, 1)

	c.OnEvent(func(ev Event) {
		mu.Lock()
		anyTypes = append(anyTypes, ev.Type)
		mu.Unlock()
	})
	c.OnEventType(TypeSpeakComplete, func(ev Event) { typed <- ev })

	c.Acquire()
	conn := srv.accept(t)
	waitUntil(t, c.IsConnected)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"onStateChange","data":{"state":"ACTIVE"}}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"onSpeakComplete","data":{"utterance":"hallo","error_code":""}}`))

	select {
	case ev := <-typed:
		var sc struct {
			Utterance string `json:"utterance"`
		}
		if err := ev.Decode(&sc); err != nil || sc.Utterance != "hallo" {
			t.Errorf("decoded = %+v, err = %v", sc, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("typed handler not called")
	}

	mu.Lock()
	if len(anyTypes) != 2 || anyTypes[0] != TypeStateChange {
		t.Errorf("any handler saw %v", anyTypes)
	}
	mu.Unlock()

	last, ok := c.LastEvent()
	if !ok || last.Type != TypeSpeakComplete {
		t.Errorf("LastEvent() = %v, %v", last.Type, ok)
	}
}

func TestClient_HandlerIsolation(t *testing.T) {
	c := newTestClient("ws://unused")
	got := 0
	c.OnEventType("x", func(Event) { panic("bad handler") })
	c.OnEventType("x", func(Event) { got++ })

	c.Dispatch(Event{Type: "x"})

	if got != 1 {
		t.Errorf("second handler calls = %d, want 1", got)
	}
}

func TestClient_OnEventTypeEmpty(t *testing.T) {
	c := newTestClient("ws://unused")
	cancel := c.OnEventType("", func(Event) { t.Error("should never be called") })
	cancel()
	c.Dispatch(Event{Type: ""})
}

func TestClient_RefCount(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(srv.wsURL())

	c.Acquire()
	c.Acquire()
	srv.accept(t)
	waitUntil(t, c.IsConnected)

	c.Release()
	if !c.IsConnected() {
		t.Error("connection dropped while a holder remains")
	}
	if c.Holders() != 1 {
		t.Errorf("Holders() = %d, want 1", c.Holders())
	}

	c.Release()
	if c.State() != StateDestroyed {
		t.Errorf("State() = %v, want destroyed", c.State())
	}

	// Extra Release is a no-op.
	c.Release()
	if c.Holders() != 0 {
		t.Errorf("Holders() = %d, want 0", c.Holders())
	}
}

func TestClient_CallRoundTrip(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(srv.wsURL())
	defer c.Close()

	c.Acquire()
	conn := srv.accept(t)
	waitUntil(t, c.IsConnected)

	go func() {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ev := Parse(msg)
		var req CallRequest
		if ev.Type != TypeCall || ev.Decode(&req) != nil {
			return
		}
		// An unrelated return must not satisfy the call.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"return","data":{"id":"other","output":1}}`))
		reply := fmt.Sprintf(`{"type":"return","data":{"id":%q,"output":{"tool":%q}}}`, req.ID, req.Tool)
		conn.WriteMessage(websocket.TextMessage, []byte(reply))
	}()

	out, err := c.Call(context.Background(), "show_offer", json.RawMessage(`{"id":7}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(out) != `{"tool":"show_offer"}` {
		t.Errorf("Call() output = %s", out)
	}
}

func TestClient_CallTimeout(t *testing.T) {
	srv := newWSServer(t)
	c := newTestClient(srv.wsURL(), WithAwaitTimeout(30*time.Millisecond))
	defer c.Close()

	c.Acquire()
	srv.accept(t)
	waitUntil(t, c.IsConnected)

	_, err := c.Call(context.Background(), "silent", nil)
	if !errors.Is(err, ErrDeliveryTimeout) {
		t.Errorf("Call() err = %v, want ErrDeliveryTimeout", err)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	c := newTestClient("ws://unused")
	if err := c.Send(context.Background(), "x", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() err = %v, want ErrNotConnected", err)
	}
}

func TestExpect_ContextCancel(t *testing.T) {
	c := newTestClient("ws://unused")
	exp := c.Expect("never", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exp.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() err = %v, want context.Canceled", err)
	}
}

func TestClient_SSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: initComplete\ndata: {}\n\n")
		fmt.Fprint(w, "event: onEventUserUtterance\ndata: {\"text\":\ndata: \"hi\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(srv.URL+"/api/events", WithTransport(TransportSSE))
	defer c.Close()

	got := make(chan Event, 2)
	c.OnEvent(func(ev Event) { got <- ev })
	c.Acquire()

	first := <-got
	if first.Type != TypeInitComplete {
		t.Errorf("first event = %q, want initComplete", first.Type)
	}
	second := <-got
	if second.Type != TypeUserUtterance {
		t.Errorf("second event = %q", second.Type)
	}

	if err := c.Send(context.Background(), "x", nil); !errors.Is(err, ErrUnsupportedTransport) {
		t.Errorf("Send() over SSE err = %v", err)
	}
}

func TestPool_SharesClients(t *testing.T) {
	p := NewPool(WithLogger(log.Discard()))
	a := p.Get("ws://robot:8790/events")
	b := p.Get("ws://robot:8790/events")
	c := p.Get("ws://other:8790/events")

	if a != b {
		t.Error("same URL returned different clients")
	}
	if a == c {
		t.Error("different URLs returned the same client")
	}
	if a.URL() != "ws://robot:8790/events" {
		t.Errorf("URL() = %q", a.URL())
	}
	p.Close()
}
