// Package speech speaks agent replies through the robot.
//
// A Controller synthesizes text with a tts.Provider, switches the robot face
// to its talking state, decodes the audio and plays it on an audioio.Sink.
// Only one utterance plays at a time; a new Speak or a Stop abandons the
// current one without firing its end event.
package speech

import "errors"

// Sentinel errors.
var (
	// ErrSynthesisFailed wraps provider failures.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")

	// ErrPlaybackFailed wraps decode and device failures.
	ErrPlaybackFailed = errors.New("speech: playback failed")

	// ErrUnsupportedFormat is returned for encodings the decoder cannot handle.
	ErrUnsupportedFormat = errors.New("speech: unsupported audio format")
)
