package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-kira/internal/log"
)

// fakeConn delivers written text frames on a channel and blocks reads until
// closed.
type fakeConn struct {
	frames chan string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan string, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, io.EOF
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	if t == websocket.TextMessage {
		f.frames <- string(data)
	}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.frames:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return ""
	}
}

func waitFor(t *testing.T, cond func() bool) {
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

func TestHub_Broadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("status", log.Discard())
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	a, b := newFakeConn(), newFakeConn()
	ca := NewClient(h, a, NewJSONMessage([]byte(`{"hello":true}`)))
	cb := NewClient(h, b)
	go ca.Run()
	go cb.Run()

	if got := a.next(t); got != `{"hello":true}` {
		t.Errorf("initial frame = %q", got)
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}
	for _, c := range []*fakeConn{a, b} {
		if got := c.next(t); got != `{"n":1}` {
			t.Errorf("frame = %q", got)
		}
	}

	a.Close()
	waitFor(t, func() bool { return h.ClientCount() == 1 })
}

func TestHub_StopDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("logs", log.Discard())
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(h, conn)
	done := make(chan struct{})
	go func() { c.Run(); close(done) }()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not exit after hub stopped")
	}
	waitFor(t, func() bool { return !h.IsRunning() })

	// Registering after stop must not block.
	late := NewClient(h, newFakeConn())
	if _, ok := <-late.send; ok {
		t.Error("late client send channel open")
	}
}

func TestEncode(t *testing.T) {
	if _, err := Encode(make(chan int)); err == nil {
		t.Error("Encode(chan) error = nil")
	}
	m, err := Encode([]string{"a"})
	if err != nil || string(m.Data) != `["a"]` {
		t.Errorf("Encode() = %q, %v", m.Data, err)
	}
}
