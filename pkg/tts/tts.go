// Package tts synthesizes speech audio from text.
//
// Providers return a complete encoded buffer; decoding and playback live in
// package speech. The OpenAI provider talks to any OpenAI-compatible
// /audio/speech endpoint.
//
// Example usage:
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice("alloy"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hallo")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz; 0 when the container carries it
	Channels   int
	BitDepth   int // PCM only
}

// Encoding is the response_format of the speech endpoint.
type Encoding string

const (
	EncodingMP3  Encoding = "mp3"
	EncodingWAV  Encoding = "wav"
	EncodingPCM  Encoding = "pcm" // raw 24kHz mono PCM16 little-endian
	EncodingOpus Encoding = "opus"
	EncodingAAC  Encoding = "aac"
	EncodingFLAC Encoding = "flac"
)

// SampleRateFromEncoding returns the fixed sample rate for headerless
// encodings, or 0 when the container defines it.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM:
		return 24000
	default:
		return 0
	}
}
