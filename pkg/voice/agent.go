package voice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-kira/pkg/listener"
)

// Agent is the voice turn orchestrator.
type Agent struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *Metrics

	onUserPrompt    *listener.Registry[Turn]
	onAgentStart    *listener.Registry[Turn]
	onAgentComplete *listener.Registry[Turn]
	onAgentError    *listener.Registry[TurnError]
	onBeforeSpeak   *listener.Registry[Turn]

	// counter is the id of the most recently created turn.
	counter atomic.Uint64

	// speechMuted is set while the microphone is muted for an utterance
	// that has not yet ended or failed.
	speechMuted atomic.Bool

	// ctx outlives individual turns; microphone restarts run under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	prompt     string
	result     string
	lastErr    error
	cancelTurn context.CancelFunc
	closed     bool
	subs       []listener.Cancel
}

// New creates an orchestrator and subscribes to its collaborators.
func New(opts ...Option) (*Agent, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics("")
	}
	logger := cfg.Logger.With("component", "voice.agent")

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		cfg:             cfg,
		logger:          logger,
		metrics:         cfg.Metrics,
		onUserPrompt:    listener.New[Turn]("voice.userPrompt", logger),
		onAgentStart:    listener.New[Turn]("voice.agentStart", logger),
		onAgentComplete: listener.New[Turn]("voice.agentComplete", logger),
		onAgentError:    listener.New[TurnError]("voice.agentError", logger),
		onBeforeSpeak:   listener.New[Turn]("voice.beforeSpeak", logger),
		ctx:             ctx,
		cancel:          cancel,
		prompt:          cfg.Prompt,
	}

	if t := cfg.Transcriber; t != nil {
		a.subs = append(a.subs, t.OnTranscription(a.handleTranscription))
	}
	if s := cfg.Speaker; s != nil {
		a.subs = append(a.subs,
			s.OnSpeakStart(func(string) { a.speechStarted() }),
			s.OnSpeakEnd(func(string) { a.speechEnded("speech") }),
			s.OnSpeakError(func(error) { a.speechEnded("speech failure") }),
		)
	}
	if s := cfg.Sleep; s != nil {
		a.subs = append(a.subs, s.OnChange(a.sleepChanged))
	}
	return a, nil
}

// Start begins listening when AutoStartListening is set.
func (a *Agent) Start(ctx context.Context) error {
	if !a.cfg.AutoStartListening {
		return nil
	}
	return a.StartListening(ctx)
}

// Close cancels the running turn and detaches from every collaborator.
// Collaborators are not closed.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.cancelTurn != nil {
		a.cancelTurn()
		a.cancelTurn = nil
	}
	for _, unsub := range a.subs {
		unsub()
	}
	a.subs = nil
	a.cancel()
	return nil
}

// Lifecycle hooks. Handler errors and panics are logged and never reach the
// turn or sibling handlers.

// OnUserPrompt registers fn for every new turn.
func (a *Agent) OnUserPrompt(fn listener.Handler[Turn]) listener.Cancel {
	return a.onUserPrompt.Add(fn)
}

// OnAgentStart registers fn, called right before the agent is invoked.
func (a *Agent) OnAgentStart(fn listener.Handler[Turn]) listener.Cancel {
	return a.onAgentStart.Add(fn)
}

// OnAgentComplete registers fn for current turns whose agent call succeeded.
func (a *Agent) OnAgentComplete(fn listener.Handler[Turn]) listener.Cancel {
	return a.onAgentComplete.Add(fn)
}

// OnAgentError registers fn for current turns whose agent call failed.
func (a *Agent) OnAgentError(fn listener.Handler[TurnError]) listener.Cancel {
	return a.onAgentError.Add(fn)
}

// OnBeforeSpeak registers fn, called before a non-empty reply is spoken.
func (a *Agent) OnBeforeSpeak(fn listener.Handler[Turn]) listener.Cancel {
	return a.onBeforeSpeak.Add(fn)
}

// Prompt returns the current text input.
func (a *Agent) Prompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompt
}

// SetPrompt replaces the text input used by Submit.
func (a *Agent) SetPrompt(p string) {
	a.mu.Lock()
	a.prompt = p
	a.mu.Unlock()
}

// CommandID returns the id of the most recently created turn.
func (a *Agent) CommandID() uint64 { return a.counter.Load() }

// Metrics returns the turn metrics.
func (a *Agent) Metrics() *Metrics { return a.metrics }

// Submit runs a text turn with the current prompt. An empty prompt creates
// no turn. The agent's error is returned unless the turn was superseded.
func (a *Agent) Submit(ctx context.Context) error {
	text := a.Prompt()
	if text == "" {
		return nil
	}
	return a.runTurn(ctx, SourceText, text)
}

// SubmitText sets the prompt and submits it.
func (a *Agent) SubmitText(ctx context.Context, text string) error {
	a.SetPrompt(text)
	return a.Submit(ctx)
}

// handleTranscription runs a voice turn. The transcription's deadline does
// not bound the agent call.
func (a *Agent) handleTranscription(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return a.runTurn(context.WithoutCancel(ctx), SourceVoice, text)
}

func (a *Agent) runTurn(ctx context.Context, source Source, text string) error {
	id, turnCtx, done, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	if source == SourceVoice {
		a.SetPrompt(text)
	}

	turn := Turn{
		CommandID: id,
		TraceID:   uuid.NewString(),
		Source:    source,
		Input:     text,
	}
	lat := TurnLatency{CommandID: id, Source: source}
	created := time.Now()
	logger := a.logger.With("command_id", id, "trace_id", turn.TraceID, "source", source)
	logger.Info("turn started", "chars", len(text))

	a.onUserPrompt.Notify(turnCtx, turn)
	a.onAgentStart.Notify(turnCtx, turn)

	a.metrics.TurnsInFlight.Inc()
	agentStart := time.Now()
	output, err := a.cfg.Responder.RunPrompt(turnCtx, text)
	lat.Agent = time.Since(agentStart)
	a.metrics.TurnsInFlight.Dec()

	superseded := func() error {
		logger.Debug("turn superseded", "current", a.CommandID(), "error", err)
		lat.Outcome = OutcomeSuperseded
		lat.Total = time.Since(created)
		a.metrics.RecordTurn(lat)
		return nil
	}

	// Nothing below may be observable for a superseded turn.
	if !a.settle(id, output, err) {
		return superseded()
	}

	if err != nil {
		logger.Error("turn failed", "error", err)
		a.onAgentError.Notify(turnCtx, TurnError{Turn: turn, Err: err})
		lat.Outcome = OutcomeFailed
		lat.Total = time.Since(created)
		a.metrics.RecordTurn(lat)
		return err
	}

	turn.Output = output
	if a.cfg.OnResponse != nil {
		a.cfg.OnResponse(output)
	}
	a.onAgentComplete.Notify(turnCtx, turn)

	if output != "" && a.cfg.Speaker != nil {
		// A completion listener may have started a newer turn.
		if !a.current(id) {
			return superseded()
		}
		a.onBeforeSpeak.Notify(turnCtx, turn)
		speakStart := time.Now()
		if err := a.cfg.Speaker.Speak(turnCtx, output); err != nil {
			logger.Warn("speech failed", "error", err)
			a.speechEnded("speech failure")
		}
		lat.Speak = time.Since(speakStart)
	}

	lat.Outcome = OutcomeCompleted
	lat.Total = time.Since(created)
	a.metrics.RecordTurn(lat)
	logger.Info("turn completed", "latency", lat.FormatLatency())
	return nil
}

// begin issues a new command id, cancels the previous turn and stops any
// speech in progress.
func (a *Agent) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0, nil, nil, ErrClosed
	}
	if a.cancelTurn != nil {
		a.cancelTurn()
	}
	id := a.counter.Add(1)
	turnCtx, cancel := context.WithCancel(ctx)
	a.cancelTurn = cancel
	a.lastErr = nil
	a.mu.Unlock()

	a.stopSpeech("interrupt")
	return id, turnCtx, cancel, nil
}

func (a *Agent) current(id uint64) bool { return a.counter.Load() == id }

// settle records the outcome of turn id and reports whether it is still the
// current turn. Outcomes of superseded turns are dropped.
func (a *Agent) settle(id uint64, output string, err error) bool {
	if err == nil && output == "" {
		// The responder may record a configuration error without failing.
		err = a.cfg.Responder.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(id) {
		return false
	}
	a.lastErr = err
	if err == nil {
		a.result = output
	}
	return true
}

// stopSpeech halts playback. A stopped utterance never reports its end, so
// the microphone is restored here.
func (a *Agent) stopSpeech(cause string) {
	s := a.cfg.Speaker
	if s == nil {
		return
	}
	wasSpeaking := s.IsSpeaking()
	s.Stop()
	if wasSpeaking && !a.sleeping() {
		a.unmute(cause)
	}
}

func (a *Agent) speechStarted() {
	a.speechMuted.Store(true)
	a.mute("speech")
}

// speechEnded restores the microphone after an utterance ends or fails,
// unless sleep mode holds it muted. It unmutes at most once per utterance.
func (a *Agent) speechEnded(cause string) {
	if !a.speechMuted.Swap(false) {
		return
	}
	if a.sleeping() {
		return
	}
	a.unmute(cause)
}

func (a *Agent) sleepChanged(sleeping bool) {
	if sleeping {
		a.mute("sleep")
		return
	}
	if a.cfg.Speaker != nil && a.cfg.Speaker.IsSpeaking() {
		return
	}
	a.unmute("sleep")
}

func (a *Agent) sleeping() bool {
	return a.cfg.Sleep != nil && a.cfg.Sleep.Sleeping()
}

func (a *Agent) mute(cause string) {
	if a.cfg.Microphone == nil {
		return
	}
	a.cfg.Microphone.MuteMic()
	a.metrics.RecordMute(true, cause)
	a.logger.Debug("microphone muted", "cause", cause)
}

func (a *Agent) unmute(cause string) {
	if a.cfg.Microphone == nil {
		return
	}
	if err := a.cfg.Microphone.UnmuteMic(a.ctx); err != nil {
		a.logger.Warn("failed to unmute microphone", "cause", cause, "error", err)
		return
	}
	a.metrics.RecordMute(false, cause)
	a.logger.Debug("microphone unmuted", "cause", cause)
}

// StartListening starts the microphone.
func (a *Agent) StartListening(ctx context.Context) error {
	if a.cfg.Microphone == nil {
		return nil
	}
	return a.cfg.Microphone.Start(ctx)
}

// StopListening pauses the microphone.
func (a *Agent) StopListening() {
	if a.cfg.Microphone != nil {
		a.cfg.Microphone.Stop()
	}
}

// StopSpeaking halts the current reply.
func (a *Agent) StopSpeaking() {
	a.stopSpeech("stop")
}

// Result returns the reply of the last turn that completed while current.
func (a *Agent) Result() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Loading reports whether an agent call is in flight.
func (a *Agent) Loading() bool { return a.cfg.Responder.Loading() }

// Err returns the error of the current turn, if it failed. Failures of
// superseded turns never show here.
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// IsListening reports whether the user is mid-utterance.
func (a *Agent) IsListening() bool {
	return a.cfg.Microphone != nil && a.cfg.Microphone.IsListening()
}

// IsTranscribing reports whether an utterance is being transcribed.
func (a *Agent) IsTranscribing() bool {
	return a.cfg.Transcriber != nil && a.cfg.Transcriber.IsTranscribing()
}

// TranscriptionErr returns the last transcription error.
func (a *Agent) TranscriptionErr() error {
	if a.cfg.Transcriber == nil {
		return nil
	}
	return a.cfg.Transcriber.Err()
}

// IsSpeaking reports whether a reply is being synthesized or played.
func (a *Agent) IsSpeaking() bool {
	return a.cfg.Speaker != nil && a.cfg.Speaker.IsSpeaking()
}

// SpeechErr returns the last synthesis or playback error.
func (a *Agent) SpeechErr() error {
	if a.cfg.Speaker == nil {
		return nil
	}
	return a.cfg.Speaker.Err()
}

// Status is a point-in-time view for presentation layers.
type Status struct {
	CommandID          uint64 `json:"commandId"`
	Prompt             string `json:"prompt"`
	Result             string `json:"result"`
	Loading            bool   `json:"loading"`
	Error              string `json:"error,omitempty"`
	Listening          bool   `json:"listening"`
	Transcribing       bool   `json:"transcribing"`
	TranscriptionError string `json:"transcriptionError,omitempty"`
	Speaking           bool   `json:"speaking"`
	SpeechError        string `json:"speechError,omitempty"`
	Sleeping           bool   `json:"sleeping"`
}

// Status snapshots every observable.
func (a *Agent) Status() Status {
	return Status{
		CommandID:          a.CommandID(),
		Prompt:             a.Prompt(),
		Result:             a.Result(),
		Loading:            a.Loading(),
		Error:              errString(a.Err()),
		Listening:          a.IsListening(),
		Transcribing:       a.IsTranscribing(),
		TranscriptionError: errString(a.TranscriptionErr()),
		Speaking:           a.IsSpeaking(),
		SpeechError:        errString(a.SpeechErr()),
		Sleeping:           a.sleeping(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
