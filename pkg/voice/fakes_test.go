package voice_test

import (
	"context"
	"sync"

	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/listener"
)

type fakeMic struct {
	mu        sync.Mutex
	calls     []string
	listening bool
	unmuteErr error

	// onCall runs after each call is recorded.
	onCall func(call string)
}

func (m *fakeMic) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	hook := m.onCall
	m.mu.Unlock()
	if hook != nil {
		hook(call)
	}
}

func (m *fakeMic) Start(context.Context) error { m.record("start"); return nil }
func (m *fakeMic) Stop()                       { m.record("stop") }
func (m *fakeMic) MuteMic()                    { m.record("mute") }

func (m *fakeMic) UnmuteMic(context.Context) error {
	m.record("unmute")
	return m.unmuteErr
}

func (m *fakeMic) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *fakeMic) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeMic) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

type fakeTranscriber struct {
	reg *listener.Registry[string]
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{reg: listener.New[string]("test.transcription", log.Discard())}
}

func (t *fakeTranscriber) OnTranscription(fn listener.Handler[string]) listener.Cancel {
	return t.reg.Add(fn)
}
func (t *fakeTranscriber) IsTranscribing() bool { return false }
func (t *fakeTranscriber) Err() error           { return nil }

func (t *fakeTranscriber) emit(text string) int {
	return t.reg.Notify(context.Background(), text)
}

// fakeSpeaker starts "playing" on Speak and only ends when finish is called.
// With err set, Speak fails after reporting the start; reportErr makes the
// failure also fire OnSpeakError, as *speech.Controller does.
type fakeSpeaker struct {
	start *listener.Registry[string]
	end   *listener.Registry[string]
	fails *listener.Registry[error]

	mu        sync.Mutex
	texts     []string
	stops     int
	speaking  bool
	current   string
	err       error
	reportErr bool
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{
		start: listener.New[string]("test.speakStart", log.Discard()),
		end:   listener.New[string]("test.speakEnd", log.Discard()),
		fails: listener.New[error]("test.speakError", log.Discard()),
	}
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.speaking = true
	s.current = text
	err, report := s.err, s.reportErr
	s.mu.Unlock()

	s.start.Notify(ctx, text)
	if err == nil {
		return nil
	}
	s.mu.Lock()
	s.speaking = false
	s.mu.Unlock()
	if report {
		s.fails.Notify(context.Background(), err)
	}
	return err
}

func (s *fakeSpeaker) finish() {
	s.mu.Lock()
	text := s.current
	s.speaking = false
	s.mu.Unlock()
	s.end.Notify(context.Background(), text)
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	s.stops++
	s.speaking = false
	s.mu.Unlock()
}

func (s *fakeSpeaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *fakeSpeaker) Err() error { return nil }

func (s *fakeSpeaker) OnSpeakStart(fn func(string)) listener.Cancel { return s.start.AddFunc(fn) }
func (s *fakeSpeaker) OnSpeakEnd(fn func(string)) listener.Cancel   { return s.end.AddFunc(fn) }
func (s *fakeSpeaker) OnSpeakError(fn func(error)) listener.Cancel  { return s.fails.AddFunc(fn) }

func (s *fakeSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *fakeSpeaker) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeSleep struct {
	reg *listener.Registry[bool]

	mu       sync.Mutex
	sleeping bool
}

func newFakeSleep() *fakeSleep {
	return &fakeSleep{reg: listener.New[bool]("test.sleep", log.Discard())}
}

func (s *fakeSleep) Sleeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeping
}

func (s *fakeSleep) OnChange(fn func(bool)) listener.Cancel { return s.reg.AddFunc(fn) }

func (s *fakeSleep) set(v bool) {
	s.mu.Lock()
	s.sleeping = v
	s.mu.Unlock()
	s.reg.Notify(context.Background(), v)
}

// hookLog records lifecycle notifications in order.
type hookLog struct {
	mu     sync.Mutex
	events []string
	turns  []string
}

func (h *hookLog) add(event, detail string) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.turns = append(h.turns, event+":"+detail)
	h.mu.Unlock()
}

func (h *hookLog) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *hookLog) Turns() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.turns...)
}
