// Package vad turns a live microphone stream into discrete speech segments.
//
// A Detector pulls frames from an audioio.Source, classifies each one, and
// emits a speech-start event once an utterance has lasted long enough to be
// real, then a speech-end event carrying the whole utterance (with a little
// pre-speech padding) as float samples and as a WAV file.
package vad

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrDeviceUnavailable wraps any failure to acquire or start capture.
	ErrDeviceUnavailable = errors.New("vad: capture device unavailable")

	// ErrDestroyed is returned by Init and Start after Destroy.
	ErrDestroyed = errors.New("vad: detector destroyed")
)

// State is the detector lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Segment is one finished utterance.
type Segment struct {
	Samples    []float32
	WAV        []byte
	SampleRate int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Duration returns the audio length.
func (s Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}
