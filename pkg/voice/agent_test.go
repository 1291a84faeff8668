package voice_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/agent"
	"github.com/teslashibe/go-kira/pkg/voice"
)

type harness struct {
	orch    *voice.Agent
	runner  *agent.Mock
	adapter *agent.Adapter
	mic     *fakeMic
	stt     *fakeTranscriber
	speaker *fakeSpeaker
	sleep   *fakeSleep
	hooks   *hookLog
}

func newHarness(t *testing.T, runner *agent.Mock, opts ...voice.Option) *harness {
	t.Helper()
	h := &harness{
		runner:  runner,
		adapter: agent.NewAdapter(agent.WithRunner(runner), agent.WithLogger(log.Discard())),
		mic:     &fakeMic{},
		stt:     newFakeTranscriber(),
		speaker: newFakeSpeaker(),
		sleep:   newFakeSleep(),
		hooks:   &hookLog{},
	}
	base := []voice.Option{
		voice.WithResponder(h.adapter),
		voice.WithMicrophone(h.mic),
		voice.WithTranscriber(h.stt),
		voice.WithSpeaker(h.speaker),
		voice.WithSleep(h.sleep),
		voice.WithLogger(log.Discard()),
	}
	orch, err := voice.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { orch.Close() })
	h.orch = orch

	orch.OnUserPrompt(func(_ context.Context, turn voice.Turn) error {
		h.hooks.add("userPrompt", turn.Input)
		return nil
	})
	orch.OnAgentStart(func(_ context.Context, turn voice.Turn) error {
		h.hooks.add("agentStart", turn.Input)
		return nil
	})
	orch.OnAgentComplete(func(_ context.Context, turn voice.Turn) error {
		h.hooks.add("agentComplete", turn.Output)
		return nil
	})
	orch.OnAgentError(func(_ context.Context, te voice.TurnError) error {
		h.hooks.add("agentError", te.Input)
		return nil
	})
	orch.OnBeforeSpeak(func(_ context.Context, turn voice.Turn) error {
		h.hooks.add("beforeSpeak", turn.Output)
		return nil
	})
	return h
}

func TestNew_RequiresResponder(t *testing.T) {
	if _, err := voice.New(voice.WithLogger(log.Discard())); !errors.Is(err, voice.ErrNoResponder) {
		t.Errorf("New() error = %v, want ErrNoResponder", err)
	}
}

func TestAgent_DefaultPrompt(t *testing.T) {
	h := newHarness(t, agent.NewMock("Sonnig."))
	if got := h.orch.Prompt(); got != voice.DefaultPrompt {
		t.Errorf("Prompt() = %q, want %q", got, voice.DefaultPrompt)
	}
}

func TestAgent_Submit(t *testing.T) {
	var responses []string
	h := newHarness(t, agent.NewMock("Hallo, wie kann ich helfen?"),
		voice.WithOnResponse(func(out string) { responses = append(responses, out) }))

	h.orch.SetPrompt("Hallo")
	if err := h.orch.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	wantEvents := []string{"userPrompt", "agentStart", "agentComplete", "beforeSpeak"}
	if got := h.hooks.Events(); !slices.Equal(got, wantEvents) {
		t.Errorf("events = %v, want %v", got, wantEvents)
	}
	if got := h.speaker.Texts(); !slices.Equal(got, []string{"Hallo, wie kann ich helfen?"}) {
		t.Errorf("spoken = %v", got)
	}
	if !slices.Equal(responses, []string{"Hallo, wie kann ich helfen?"}) {
		t.Errorf("OnResponse = %v", responses)
	}
	if h.orch.CommandID() != 1 {
		t.Errorf("CommandID() = %d, want 1", h.orch.CommandID())
	}
	if h.orch.Result() != "Hallo, wie kann ich helfen?" {
		t.Errorf("Result() = %q", h.orch.Result())
	}
	if h.speaker.Stops() != 1 {
		t.Errorf("speaker stops = %d, want 1 per turn", h.speaker.Stops())
	}
}

func TestAgent_EmptyPromptCreatesNoTurn(t *testing.T) {
	h := newHarness(t, agent.NewMock("x"))

	h.orch.SetPrompt("")
	if err := h.orch.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	h.stt.emit("")

	if h.orch.CommandID() != 0 {
		t.Errorf("CommandID() = %d, want 0", h.orch.CommandID())
	}
	if h.runner.CallCount() != 0 {
		t.Errorf("agent called %d times", h.runner.CallCount())
	}
	if h.speaker.Stops() != 0 {
		t.Error("speech stopped without a turn")
	}
}

func TestAgent_EmptyReplyNotSpoken(t *testing.T) {
	h := newHarness(t, agent.NewMock(""))
	if err := h.orch.SubmitText(context.Background(), "Hm"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	if got := h.hooks.Events(); slices.Contains(got, "beforeSpeak") || !slices.Contains(got, "agentComplete") {
		t.Errorf("events = %v", got)
	}
	if len(h.speaker.Texts()) != 0 {
		t.Errorf("spoken = %v", h.speaker.Texts())
	}
}

func TestAgent_VoiceTurn(t *testing.T) {
	h := newHarness(t, agent.NewMock("Gern."))

	var sources []voice.Source
	h.orch.OnUserPrompt(func(_ context.Context, turn voice.Turn) error {
		sources = append(sources, turn.Source)
		return nil
	})

	if failed := h.stt.emit("Kannst du winken?"); failed != 0 {
		t.Fatalf("transcription handler failed %d times", failed)
	}
	if got := h.runner.Prompts(); !slices.Equal(got, []string{"Kannst du winken?"}) {
		t.Errorf("prompts = %v", got)
	}
	if h.orch.Prompt() != "Kannst du winken?" {
		t.Errorf("Prompt() = %q, want the transcript", h.orch.Prompt())
	}
	if !slices.Equal(sources, []voice.Source{voice.SourceVoice}) {
		t.Errorf("sources = %v", sources)
	}
	if got := h.speaker.Texts(); !slices.Equal(got, []string{"Gern."}) {
		t.Errorf("spoken = %v", got)
	}
}

func TestAgent_VoiceTurnFailureReachesTranscriber(t *testing.T) {
	boom := errors.New("model down")
	h := newHarness(t, &agent.Mock{RunFunc: func(context.Context, string) (string, error) { return "", boom }})

	if failed := h.stt.emit("Hallo"); failed != 1 {
		t.Errorf("failed handlers = %d, want 1", failed)
	}
}

func TestAgent_Failure(t *testing.T) {
	boom := errors.New("model down")
	h := newHarness(t, &agent.Mock{RunFunc: func(context.Context, string) (string, error) { return "", boom }})

	err := h.orch.SubmitText(context.Background(), "Hallo")
	if !errors.Is(err, boom) || !errors.Is(err, agent.ErrInvocationFailed) {
		t.Fatalf("Submit() error = %v", err)
	}
	want := []string{"userPrompt", "agentStart", "agentError"}
	if got := h.hooks.Events(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(h.speaker.Texts()) != 0 {
		t.Error("failed turn spoke")
	}
	if !errors.Is(h.orch.Err(), agent.ErrInvocationFailed) {
		t.Errorf("Err() = %v", h.orch.Err())
	}
}

// blockingRunner holds the first prompt until released.
type blockingRunner struct {
	entered   chan struct{}
	release   chan struct{}
	cancelled chan struct{}
	honorCtx  bool
	firstErr  error
}

func newBlockingRunner(honorCtx bool) *blockingRunner {
	return &blockingRunner{
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
		cancelled: make(chan struct{}, 1),
		honorCtx:  honorCtx,
	}
}

func (b *blockingRunner) mock() *agent.Mock {
	return &agent.Mock{RunFunc: func(ctx context.Context, prompt string) (string, error) {
		if prompt != "A" {
			return "reply " + prompt, nil
		}
		close(b.entered)
		if b.honorCtx {
			select {
			case <-ctx.Done():
				b.cancelled <- struct{}{}
				return "", ctx.Err()
			case <-b.release:
			}
		} else {
			<-b.release
		}
		if b.firstErr != nil {
			return "", b.firstErr
		}
		return "reply A", nil
	}}
}

func runFirst(t *testing.T, h *harness, b *blockingRunner) chan error {
	t.Helper()
	errA := make(chan error, 1)
	go func() { errA <- h.orch.SubmitText(context.Background(), "A") }()
	select {
	case <-b.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached the agent")
	}
	return errA
}

func awaitErr(t *testing.T, ch chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish")
		return nil
	}
}

func TestAgent_SupersededTurnIsSilent(t *testing.T) {
	b := newBlockingRunner(false)
	h := newHarness(t, b.mock())

	errA := runFirst(t, h, b)
	if err := h.orch.SubmitText(context.Background(), "B"); err != nil {
		t.Fatalf("Submit(B) error = %v", err)
	}
	close(b.release)
	if err := awaitErr(t, errA); err != nil {
		t.Errorf("superseded turn error = %v, want nil", err)
	}

	want := []string{
		"userPrompt:A", "agentStart:A",
		"userPrompt:B", "agentStart:B", "agentComplete:reply B", "beforeSpeak:reply B",
	}
	if got := h.hooks.Turns(); !slices.Equal(got, want) {
		t.Errorf("hooks = %v, want %v", got, want)
	}
	if got := h.speaker.Texts(); !slices.Equal(got, []string{"reply B"}) {
		t.Errorf("spoken = %v, want only reply B", got)
	}

	last := h.orch.Metrics().Last()
	if last.CommandID != 1 || last.Outcome != voice.OutcomeSuperseded {
		t.Errorf("last turn = %+v, want superseded command 1", last)
	}
}

func TestAgent_SupersededFailureIsDiscarded(t *testing.T) {
	b := newBlockingRunner(false)
	b.firstErr = errors.New("late failure")
	h := newHarness(t, b.mock())

	errA := runFirst(t, h, b)
	if err := h.orch.SubmitText(context.Background(), "B"); err != nil {
		t.Fatalf("Submit(B) error = %v", err)
	}
	close(b.release)
	if err := awaitErr(t, errA); err != nil {
		t.Errorf("superseded failure surfaced: %v", err)
	}
	if slices.Contains(h.hooks.Events(), "agentError") {
		t.Error("agent error listeners ran for a superseded turn")
	}
	if h.orch.Err() != nil {
		t.Errorf("Err() = %v, want nil after the newer turn succeeded", h.orch.Err())
	}
	if s := h.orch.Status(); s.Error != "" || s.Result != "reply B" {
		t.Errorf("Status() error = %q, result = %q; want no error and reply B", s.Error, s.Result)
	}
}

func TestAgent_SupersededReplyDoesNotReplaceResult(t *testing.T) {
	b := newBlockingRunner(false)
	h := newHarness(t, b.mock())

	errA := runFirst(t, h, b)
	if err := h.orch.SubmitText(context.Background(), "B"); err != nil {
		t.Fatalf("Submit(B) error = %v", err)
	}
	close(b.release)
	_ = awaitErr(t, errA)

	if got := h.orch.Result(); got != "reply B" {
		t.Errorf("Result() = %q, want reply B", got)
	}
}

func TestAgent_SupersededTurnIsCancelled(t *testing.T) {
	b := newBlockingRunner(true)
	h := newHarness(t, b.mock())

	errA := runFirst(t, h, b)
	if err := h.orch.SubmitText(context.Background(), "B"); err != nil {
		t.Fatalf("Submit(B) error = %v", err)
	}
	select {
	case <-b.cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn's context was not cancelled")
	}
	if err := awaitErr(t, errA); err != nil {
		t.Errorf("cancelled turn error = %v, want nil", err)
	}
	if slices.Contains(h.hooks.Events(), "agentError") {
		t.Error("cancellation reported as agent error")
	}
	if h.adapter.Err() != nil || h.orch.Err() != nil {
		t.Errorf("Err() = %v / %v, want nil after cancellation", h.adapter.Err(), h.orch.Err())
	}
	if s := h.orch.Status(); s.Error != "" || s.Result != "reply B" {
		t.Errorf("Status() error = %q, result = %q; want no error and reply B", s.Error, s.Result)
	}
}

func TestAgent_TurnSupersededBeforeSpeaking(t *testing.T) {
	runner := &agent.Mock{RunFunc: func(_ context.Context, prompt string) (string, error) {
		return "reply " + prompt, nil
	}}
	h := newHarness(t, runner)

	// A completion listener starting a newer turn supersedes the one
	// whose reply it is observing.
	h.orch.OnAgentComplete(func(_ context.Context, turn voice.Turn) error {
		if turn.Input == "A" {
			return h.orch.SubmitText(context.Background(), "B")
		}
		return nil
	})

	if err := h.orch.SubmitText(context.Background(), "A"); err != nil {
		t.Fatalf("Submit(A) error = %v", err)
	}
	if got := h.speaker.Texts(); !slices.Equal(got, []string{"reply B"}) {
		t.Errorf("spoken = %v, want only reply B", got)
	}
	if slices.Contains(h.hooks.Turns(), "beforeSpeak:reply A") {
		t.Error("beforeSpeak ran for the superseded reply")
	}
	if last := h.orch.Metrics().Last(); last.CommandID != 1 || last.Outcome != voice.OutcomeSuperseded {
		t.Errorf("last turn = %+v, want superseded command 1", last)
	}
	if got := h.orch.Result(); got != "reply B" {
		t.Errorf("Result() = %q, want reply B", got)
	}
}

func TestAgent_SpeechFailureRestoresMic(t *testing.T) {
	for _, reported := range []bool{true, false} {
		name := "returned error only"
		if reported {
			name = "speak error event"
		}
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, agent.NewMock("Antwort"))
			h.speaker.err = errors.New("synthesis failed")
			h.speaker.reportErr = reported

			if err := h.orch.SubmitText(context.Background(), "Hallo"); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if got := h.mic.Calls(); !slices.Equal(got, []string{"mute", "unmute"}) {
				t.Errorf("mic calls = %v, want [mute unmute]", got)
			}
			if h.orch.IsSpeaking() {
				t.Error("IsSpeaking() = true after failure")
			}
		})
	}
}

func TestAgent_SpeechFailureWhileAsleepStaysMuted(t *testing.T) {
	h := newHarness(t, agent.NewMock("Antwort"))
	h.speaker.err = errors.New("synthesis failed")
	h.speaker.reportErr = true
	h.orch.OnBeforeSpeak(func(context.Context, voice.Turn) error {
		h.sleep.set(true)
		return nil
	})

	_ = h.orch.SubmitText(context.Background(), "Hallo")
	if got := h.mic.Calls(); !slices.Equal(got, []string{"mute", "mute"}) {
		t.Errorf("mic calls = %v, want [mute mute]", got)
	}
}

func TestAgent_ListenerFailuresIsolated(t *testing.T) {
	h := newHarness(t, agent.NewMock("ok"))

	var after bool
	h.orch.OnAgentComplete(func(context.Context, voice.Turn) error { panic("boom") })
	h.orch.OnAgentComplete(func(context.Context, voice.Turn) error { return errors.New("nope") })
	h.orch.OnAgentComplete(func(context.Context, voice.Turn) error { after = true; return nil })

	if err := h.orch.SubmitText(context.Background(), "Hallo"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !after {
		t.Error("handler after a failing one did not run")
	}
	if got := h.speaker.Texts(); !slices.Equal(got, []string{"ok"}) {
		t.Errorf("spoken = %v", got)
	}
}

func TestAgent_CancelHook(t *testing.T) {
	h := newHarness(t, agent.NewMock("ok"))

	var n int
	cancel := h.orch.OnUserPrompt(func(context.Context, voice.Turn) error { n++; return nil })
	_ = h.orch.SubmitText(context.Background(), "a")
	cancel()
	cancel()
	_ = h.orch.SubmitText(context.Background(), "b")
	if n != 1 {
		t.Errorf("handler ran %d times, want 1", n)
	}
}

func TestAgent_MuteWiring(t *testing.T) {
	h := newHarness(t, agent.NewMock("Antwort"))

	if err := h.orch.SubmitText(context.Background(), "Hallo"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := h.mic.Calls(); !slices.Equal(got, []string{"mute"}) {
		t.Fatalf("mic calls after speak start = %v, want [mute]", got)
	}

	h.speaker.finish()
	if got := h.mic.Calls(); !slices.Equal(got, []string{"mute", "unmute"}) {
		t.Errorf("mic calls after speak end = %v, want [mute unmute]", got)
	}
}

func TestAgent_SpeakEndWhileAsleepStaysMuted(t *testing.T) {
	h := newHarness(t, agent.NewMock("Antwort"))

	_ = h.orch.SubmitText(context.Background(), "Hallo")
	h.sleep.set(true)
	h.mic.Reset()

	h.speaker.finish()
	if got := h.mic.Calls(); len(got) != 0 {
		t.Errorf("mic calls = %v, want none while asleep", got)
	}
}

func TestAgent_SleepWake(t *testing.T) {
	t.Run("wake while idle unmutes", func(t *testing.T) {
		h := newHarness(t, agent.NewMock("x"))
		h.sleep.set(true)
		h.sleep.set(false)
		if got := h.mic.Calls(); !slices.Equal(got, []string{"mute", "unmute"}) {
			t.Errorf("mic calls = %v, want [mute unmute]", got)
		}
	})

	t.Run("wake while speaking stays muted", func(t *testing.T) {
		h := newHarness(t, agent.NewMock("Antwort"))
		_ = h.orch.SubmitText(context.Background(), "Hallo")
		h.sleep.set(true)
		h.mic.Reset()

		h.sleep.set(false)
		if got := h.mic.Calls(); len(got) != 0 {
			t.Errorf("mic calls = %v, want none while speaking", got)
		}

		h.speaker.finish()
		if got := h.mic.Calls(); !slices.Equal(got, []string{"unmute"}) {
			t.Errorf("mic calls after speech = %v, want [unmute]", got)
		}
	})
}

func TestAgent_InterruptRestoresMic(t *testing.T) {
	h := newHarness(t, agent.NewMock(""))

	_ = h.speaker.Speak(context.Background(), "alte Antwort")
	h.mic.Reset()

	_ = h.orch.SubmitText(context.Background(), "Stopp")
	if got := h.mic.Calls(); !slices.Equal(got, []string{"unmute"}) {
		t.Errorf("mic calls = %v, want [unmute]", got)
	}
	if h.speaker.IsSpeaking() {
		t.Error("old speech still playing")
	}
}

func TestAgent_StopSpeaking(t *testing.T) {
	h := newHarness(t, agent.NewMock(""))

	h.orch.StopSpeaking()
	if got := h.mic.Calls(); len(got) != 0 {
		t.Errorf("idle StopSpeaking touched mic: %v", got)
	}

	_ = h.speaker.Speak(context.Background(), "Text")
	h.sleep.set(true)
	h.mic.Reset()
	h.orch.StopSpeaking()
	if got := h.mic.Calls(); len(got) != 0 {
		t.Errorf("StopSpeaking while asleep touched mic: %v", got)
	}
}

func TestAgent_Listening(t *testing.T) {
	h := newHarness(t, agent.NewMock(""), voice.WithAutoStartListening(true))

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.orch.StopListening()
	if got := h.mic.Calls(); !slices.Equal(got, []string{"start", "stop"}) {
		t.Errorf("mic calls = %v", got)
	}
}

func TestAgent_Close(t *testing.T) {
	h := newHarness(t, agent.NewMock("x"))
	h.orch.Close()

	if err := h.orch.SubmitText(context.Background(), "Hallo"); !errors.Is(err, voice.ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
	if n := h.stt.emit("Hallo"); n != 0 || h.runner.CallCount() != 0 {
		t.Error("transcription still wired after Close")
	}
	if err := h.orch.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAgent_Status(t *testing.T) {
	h := newHarness(t, agent.NewMock("Antwort"))
	_ = h.orch.SubmitText(context.Background(), "Hallo")
	h.sleep.set(true)

	s := h.orch.Status()
	if s.CommandID != 1 || s.Prompt != "Hallo" || s.Result != "Antwort" {
		t.Errorf("Status() = %+v", s)
	}
	if !s.Speaking || !s.Sleeping || s.Loading {
		t.Errorf("Status() flags = %+v", s)
	}
}

func counterValue(t *testing.T, m *voice.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestAgent_Metrics(t *testing.T) {
	m := voice.NewMetrics("test")
	boom := errors.New("down")
	calls := 0
	h := newHarness(t, &agent.Mock{RunFunc: func(context.Context, string) (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return "ok", nil
	}}, voice.WithMetrics(m))

	_ = h.orch.SubmitText(context.Background(), "eins")
	_ = h.orch.SubmitText(context.Background(), "zwei")

	if v := counterValue(t, m, "test_turns_total", map[string]string{"source": "text", "outcome": "completed"}); v != 1 {
		t.Errorf("completed turns = %v, want 1", v)
	}
	if v := counterValue(t, m, "test_turns_total", map[string]string{"source": "text", "outcome": "failed"}); v != 1 {
		t.Errorf("failed turns = %v, want 1", v)
	}
	if v := counterValue(t, m, "test_mic_transitions_total", map[string]string{"action": "mute", "cause": "speech"}); v != 1 {
		t.Errorf("speech mutes = %v, want 1", v)
	}
	if n := len(m.History()); n != 2 {
		t.Errorf("history = %d turns, want 2", n)
	}
	if avg := m.Average(); avg.Outcome != voice.OutcomeCompleted {
		t.Errorf("Average() = %+v", avg)
	}
}
