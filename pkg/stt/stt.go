// Package stt turns finished speech segments into text.
//
// A Transcriber backend does the recognition (the OpenAI transcription API,
// or a local whisper.cpp model when built with the whisper tag). The Adapter
// sits between the VAD and the rest of the pipeline: it drops segments
// captured while the microphone is muted, runs the backend off the capture
// goroutine and fans non-empty transcripts out to listeners.
package stt

import "context"

// DefaultFilename is the upload name for segment audio.
const DefaultFilename = "speech.wav"

// Transcriber converts a WAV file to text.
type Transcriber interface {
	// Transcribe returns the recognized text. Silence may yield "".
	Transcribe(ctx context.Context, wav []byte, filename string) (string, error)

	// Close releases any resources held by the backend.
	Close() error
}
