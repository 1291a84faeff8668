package voice

import (
	"context"
	"errors"

	"github.com/teslashibe/go-kira/pkg/listener"
)

// DefaultPrompt is the initial text-input value.
const DefaultPrompt = "What is the weather in Tokyo?"

// Common errors.
var (
	ErrNoResponder = errors.New("voice: no agent responder configured")
	ErrClosed      = errors.New("voice: agent closed")
)

// Source is where a turn's input came from.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// Turn is one user-input-to-spoken-response cycle.
type Turn struct {
	CommandID uint64 `json:"commandId"`
	TraceID   string `json:"traceId"`
	Source    Source `json:"source"`
	Input     string `json:"input"`
	Output    string `json:"output,omitempty"`
}

// TurnError is delivered to agent error listeners.
type TurnError struct {
	Turn
	Err error `json:"-"`
}

// Responder runs prompts through the language model. *agent.Adapter
// satisfies it.
type Responder interface {
	RunPrompt(ctx context.Context, text string) (string, error)
	Loading() bool
	Err() error
}

// Microphone is the voice activity detector. *vad.Detector satisfies it.
type Microphone interface {
	Start(ctx context.Context) error
	Stop()
	MuteMic()
	UnmuteMic(ctx context.Context) error
	IsListening() bool
}

// Transcriber delivers finished utterances as text. *stt.Adapter
// satisfies it.
type Transcriber interface {
	OnTranscription(fn listener.Handler[string]) listener.Cancel
	IsTranscribing() bool
	Err() error
}

// Speaker synthesizes and plays replies. *speech.Controller satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
	IsSpeaking() bool
	Err() error
	OnSpeakStart(fn func(text string)) listener.Cancel
	OnSpeakEnd(fn func(text string)) listener.Cancel
	OnSpeakError(fn func(err error)) listener.Cancel
}

// SleepState reports sleep mode transitions. *sleep.Mode satisfies it.
type SleepState interface {
	Sleeping() bool
	OnChange(fn func(sleeping bool)) listener.Cancel
}
