package robot

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/state"
)

type recordedRequest struct {
	Method string
	Path   string
	Form   map[string]string
}

// robotServer records requests and answers 200 {"status":"queued"} unless overridden.
type robotServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int
	body     map[string]string
	onPath   map[string]func(form map[string]string)
}

func newRobotServer(t *testing.T) *robotServer {
	t.Helper()
	s := &robotServer{
		status: map[string]int{},
		body:   map[string]string{},
		onPath: map[string]func(map[string]string){},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}

		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Form: form})
		code, ok := s.status[r.URL.Path]
		body, hasBody := s.body[r.URL.Path]
		hook := s.onPath[r.URL.Path]
		s.mu.Unlock()

		if hook != nil {
			hook(form)
		}
		if !ok {
			code = http.StatusOK
		}
		if !hasBody {
			body = `{"status":"queued"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *robotServer) reqs() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

func (s *robotServer) client(opts ...Option) *Client {
	base := []Option{WithBaseURL(s.URL), WithLogger(log.Discard())}
	return NewClient(append(base, opts...)...)
}

func TestSetExpressionPostsForm(t *testing.T) {
	srv := newRobotServer(t)
	c := srv.client()

	if err := c.SetExpression(context.Background(), ExpressionHappy); err != nil {
		t.Fatalf("SetExpression() error = %v", err)
	}

	reqs := srv.reqs()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	r := reqs[0]
	if r.Method != http.MethodPost || r.Path != "/api/face/expression" || r.Form["expression"] != "HAPPY" {
		t.Errorf("request = %+v", r)
	}
}

func TestSetExpressionEmptyIsNoop(t *testing.T) {
	srv := newRobotServer(t)
	c := srv.client()

	c.SetExpression(context.Background(), "")
	if n := len(srv.reqs()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestExpressionLock(t *testing.T) {
	srv := newRobotServer(t)
	shared := state.New()
	a := srv.client(WithShared(shared))
	b := srv.client(WithShared(shared))
	ctx := context.Background()

	if err := a.LockExpression(ctx, ExpressionTired); err != nil {
		t.Fatalf("LockExpression() error = %v", err)
	}

	// Lock is shared: neither client may change the face or animate.
	b.SetExpression(ctx, ExpressionHappy)
	a.SetExpression(ctx, ExpressionExpecting)
	b.StartSpeakAnimation(ctx)

	reqs := srv.reqs()
	if len(reqs) != 1 || reqs[0].Form["expression"] != "TIRED" {
		t.Fatalf("requests while locked = %+v, want only the TIRED lock post", reqs)
	}
	if !b.ExpressionLocked() {
		t.Error("lock not visible through second client")
	}

	b.UnlockExpression()
	if n := len(srv.reqs()); n != 1 {
		t.Errorf("UnlockExpression made %d extra requests, want 0", n-1)
	}

	a.SetExpression(ctx, ExpressionDefault)
	reqs = srv.reqs()
	if len(reqs) != 2 || reqs[1].Form["expression"] != "DEFAULT" {
		t.Errorf("after unlock requests = %+v", reqs)
	}
}

func TestLockExpressionWithoutFace(t *testing.T) {
	srv := newRobotServer(t)
	c := srv.client()

	c.LockExpression(context.Background(), "")
	if !c.ExpressionLocked() {
		t.Error("lock not taken")
	}
	if n := len(srv.reqs()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestCommandError(t *testing.T) {
	srv := newRobotServer(t)
	srv.status["/api/dialog/stop_speak"] = http.StatusInternalServerError
	c := srv.client()

	err := c.StopSpeak(context.Background())
	if !errors.Is(err, ErrRemoteCommandFailed) {
		t.Fatalf("err = %v, want ErrRemoteCommandFailed", err)
	}
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T, want *CommandError", err)
	}
	if ce.Path != "/api/dialog/stop_speak" || ce.Status != 500 {
		t.Errorf("CommandError = %+v", ce)
	}
	if ce.Error() != "Robot API /api/dialog/stop_speak failed with status 500" {
		t.Errorf("Error() = %q", ce.Error())
	}
}

func TestCheckHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := newRobotServer(t)
		c := srv.client()
		c.CheckHealth(context.Background())
		if !c.Healthy() || c.HealthErr() != nil || c.HealthLoading() {
			t.Errorf("Healthy=%v HealthErr=%v Loading=%v", c.Healthy(), c.HealthErr(), c.HealthLoading())
		}
	})

	t.Run("non-2xx", func(t *testing.T) {
		srv := newRobotServer(t)
		srv.status["/health"] = http.StatusServiceUnavailable
		c := srv.client()
		c.CheckHealth(context.Background())
		if c.Healthy() || c.HealthErr() == nil {
			t.Errorf("Healthy=%v HealthErr=%v", c.Healthy(), c.HealthErr())
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient(WithBaseURL("http://127.0.0.1:1"), WithLogger(log.Discard()))
		c.CheckHealth(context.Background())
		if c.Healthy() || c.HealthErr() == nil {
			t.Errorf("Healthy=%v HealthErr=%v", c.Healthy(), c.HealthErr())
		}
	})
}

func TestAttach(t *testing.T) {
	srv := newRobotServer(t)

	c := srv.client(WithAutoCheckHealth(false))
	c.Attach(context.Background())
	if len(srv.reqs()) != 0 {
		t.Error("Attach probed health with AutoCheckHealth disabled")
	}

	c = srv.client()
	c.Attach(context.Background())
	if !c.Healthy() {
		t.Error("Attach did not run the default health check")
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	c := NewClient(WithBaseURL("http://robot:8787///"), WithLogger(log.Discard()))
	if c.BaseURL() != "http://robot:8787" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestUtilityCommands(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantPath string
		wantForm map[string]string
	}{
		{"speak", func(c *Client) error { return c.Speak(ctx, "Hallo") }, "/api/dialog/speak", map[string]string{"text": "Hallo"}},
		{"voice trigger", func(c *Client) error { return c.SetVoiceTrigger(ctx, true) }, "/api/dialog/voice_trigger", map[string]string{"enable": "true"}},
		{"head action", func(c *Client) error { return c.SetHeadAction(ctx, false) }, "/api/dialog/head_action", map[string]string{"enable": "false"}},
		{"expression and speak", func(c *Client) error { return c.ExpressionAndSpeak(ctx, ExpressionHappy, "Hi") }, "/api/face/expression_and_speak", map[string]string{"expression": "HAPPY", "text": "Hi"}},
		{"follow face", func(c *Client) error {
			return c.FollowFace(ctx, PreviewOptions{EnablePreview: Bool(true)})
		}, "/api/utility/follow_face", map[string]string{"enablePreview": "true"}},
		{"follow object", func(c *Client) error { return c.FollowObject(ctx) }, "/api/utility/follow_object", map[string]string{}},
		{"stop following", func(c *Client) error { return c.StopFollowing(ctx) }, "/api/utility/stop_following", map[string]string{}},
		{"track face", func(c *Client) error {
			return c.TrackFace(ctx, PreviewOptions{EnablePreview: Bool(false), LargePreview: Bool(true)})
		}, "/api/utility/track_face", map[string]string{"enablePreview": "false", "largePreview": "true"}},
		{"look at user", func(c *Client) error { return c.LookAtUser(ctx, 42.5) }, "/api/utility/look_at_user", map[string]string{"doa": "42.5"}},
		{"play action", func(c *Client) error { return c.PlayAction(ctx, 3) }, "/api/utility/play_action", map[string]string{"number": "3"}},
		{"emotional action", func(c *Client) error { return c.PlayEmotionalAction(ctx, ExpressionProud, 2) }, "/api/utility/play_emotional_action", map[string]string{"face": "PROUD", "action": "2"}},
		{"blue light mode", func(c *Client) error { return c.SetBlueLightFilterMode(ctx, "night") }, "/api/utility/set_blue_light_filter_mode", map[string]string{"mode": "night"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRobotServer(t)
			if err := tt.call(srv.client()); err != nil {
				t.Fatalf("error = %v", err)
			}
			reqs := srv.reqs()
			if len(reqs) != 1 {
				t.Fatalf("requests = %d, want 1", len(reqs))
			}
			if reqs[0].Path != tt.wantPath {
				t.Errorf("path = %q, want %q", reqs[0].Path, tt.wantPath)
			}
			if len(reqs[0].Form) != len(tt.wantForm) {
				t.Errorf("form = %v, want %v", reqs[0].Form, tt.wantForm)
			}
			for k, v := range tt.wantForm {
				if reqs[0].Form[k] != v {
					t.Errorf("form[%s] = %q, want %q", k, reqs[0].Form[k], v)
				}
			}
		})
	}
}

func TestGuardedNoops(t *testing.T) {
	srv := newRobotServer(t)
	c := srv.client()
	ctx := context.Background()

	c.Speak(ctx, "")
	c.LookAtUser(ctx, math.NaN())
	c.LookAtUser(ctx, math.Inf(1))
	c.PlayEmotionalAction(ctx, "", 1)
	c.ExpressionAndSpeak(ctx, ExpressionHappy, "")
	c.SetBlueLightFilterMode(ctx, "")

	if n := len(srv.reqs()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestQueries(t *testing.T) {
	srv := newRobotServer(t)
	srv.body["/api/system/battery"] = `{"level":80,"scale":100,"percentage":80,"present":true,"technology":null}`
	srv.body["/api/utility/get_blue_light_filter_enable"] = `{"status":"true"}`
	srv.body["/api/system/device"] = `not json`
	c := srv.client()
	ctx := context.Background()

	b, err := c.Battery(ctx)
	if err != nil || b == nil {
		t.Fatalf("Battery() = %v, %v", b, err)
	}
	if b.Percentage != 80 || !b.Present || b.Technology != nil {
		t.Errorf("Battery = %+v", b)
	}

	st, err := c.BlueLightFilterEnabled(ctx)
	if err != nil || st == nil || st.Status != "true" {
		t.Errorf("BlueLightFilterEnabled() = %v, %v", st, err)
	}

	d, err := c.Device(ctx)
	if err != nil || d != nil {
		t.Errorf("Device() with non-JSON body = %v, %v; want nil, nil", d, err)
	}

	srv.status["/api/system/memory"] = http.StatusNotFound
	if _, err := c.Memory(ctx); !errors.Is(err, ErrRemoteCommandFailed) {
		t.Errorf("Memory() err = %v, want ErrRemoteCommandFailed", err)
	}
}

func TestQueries_NonJSONBodyIsNilNil(t *testing.T) {
	srv := newRobotServer(t)
	c := srv.client()
	ctx := context.Background()

	queries := []struct {
		name string
		path string
		call func() (bool, error)
	}{
		{"battery", "/api/system/battery", func() (bool, error) { v, err := c.Battery(ctx); return v == nil, err }},
		{"device", "/api/system/device", func() (bool, error) { v, err := c.Device(ctx); return v == nil, err }},
		{"connectivity", "/api/system/connectivity", func() (bool, error) { v, err := c.Connectivity(ctx); return v == nil, err }},
		{"memory", "/api/system/memory", func() (bool, error) { v, err := c.Memory(ctx); return v == nil, err }},
		{"storage", "/api/system/storage", func() (bool, error) { v, err := c.Storage(ctx); return v == nil, err }},
		{"blue light enabled", "/api/utility/get_blue_light_filter_enable", func() (bool, error) { v, err := c.BlueLightFilterEnabled(ctx); return v == nil, err }},
		{"blue light mode", "/api/utility/get_blue_light_filter_mode", func() (bool, error) { v, err := c.BlueLightFilterMode(ctx); return v == nil, err }},
	}
	for _, body := range []string{"OK", ""} {
		for _, q := range queries {
			t.Run(q.name+"/"+strconv.Quote(body), func(t *testing.T) {
				srv.mu.Lock()
				srv.body[q.path] = body
				srv.mu.Unlock()
				isNil, err := q.call()
				if err != nil || !isNil {
					t.Errorf("result nil = %v, err = %v; want nil, nil", isNil, err)
				}
			})
		}
	}
}

func TestSpeakAndWait(t *testing.T) {
	srv := newRobotServer(t)
	ec := events.NewClient(events.WithLogger(log.Discard()), events.WithAwaitTimeout(time.Second))
	srv.onPath["/api/dialog/speak"] = func(form map[string]string) {
		go func() {
			data, _ := json.Marshal(SpeakResult{Utterance: "other"})
			ec.Dispatch(events.Event{Type: events.TypeSpeakComplete, Data: data})
			data, _ = json.Marshal(SpeakResult{Utterance: form["text"], ErrorCode: "0"})
			ec.Dispatch(events.Event{Type: events.TypeSpeakComplete, Data: data})
		}()
	}
	c := srv.client(WithEvents(ec))

	res, err := c.SpeakAndWait(context.Background(), "Guten Tag")
	if err != nil {
		t.Fatalf("SpeakAndWait() error = %v", err)
	}
	if res.Utterance != "Guten Tag" || res.ErrorCode != "0" {
		t.Errorf("result = %+v", res)
	}
}

func TestSpeakAndWaitTimeout(t *testing.T) {
	srv := newRobotServer(t)
	ec := events.NewClient(events.WithLogger(log.Discard()), events.WithAwaitTimeout(20*time.Millisecond))
	c := srv.client(WithEvents(ec))

	if _, err := c.SpeakAndWait(context.Background(), "Hallo"); !errors.Is(err, events.ErrDeliveryTimeout) {
		t.Errorf("err = %v, want ErrDeliveryTimeout", err)
	}
}

func TestSpeakAndWaitWithoutEvents(t *testing.T) {
	srv := newRobotServer(t)
	if _, err := srv.client().SpeakAndWait(context.Background(), "x"); !errors.Is(err, ErrNoEventStream) {
		t.Errorf("err = %v, want ErrNoEventStream", err)
	}
}

func TestParseExpression(t *testing.T) {
	if e, ok := ParseExpression(" happy "); !ok || e != ExpressionHappy {
		t.Errorf("ParseExpression(happy) = %q, %v", e, ok)
	}
	if _, ok := ParseExpression("grumpy"); ok {
		t.Error("ParseExpression(grumpy) should fail")
	}
}

func TestMockHonorsLock(t *testing.T) {
	m := NewMock(nil)
	ctx := context.Background()

	m.LockExpression(ctx, ExpressionTired)
	m.SetExpression(ctx, ExpressionHappy)
	m.StartSpeakAnimation(ctx)
	m.UnlockExpression()
	m.SetExpression(ctx, ExpressionDefault)

	sent := m.Sent()
	if len(sent) != 2 || sent[0] != ExpressionTired || sent[1] != ExpressionDefault {
		t.Errorf("Sent() = %v", sent)
	}
	if m.Animations() != 0 {
		t.Errorf("Animations() = %d, want 0", m.Animations())
	}
}
