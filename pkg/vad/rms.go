package vad

import "math"

// Classifier decides, frame by frame, whether the speaker is talking.
// Implementations keep their own hysteresis state.
type Classifier interface {
	IsSpeech(frame []float32) bool
	Reset()
}

// RMSConfig tunes the energy classifier.
type RMSConfig struct {
	SpeechThreshold  float64 // RMS level to enter speech
	SilenceThreshold float64 // RMS level to leave speech
	SpeechFrames     int     // consecutive loud frames needed to enter
	SilenceFrames    int     // consecutive quiet frames needed to leave
}

// DefaultRMSConfig suits 16kHz audio in 20ms frames.
func DefaultRMSConfig() RMSConfig {
	return RMSConfig{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     3,  // ~60ms to start
		SilenceFrames:    30, // ~600ms to end
	}
}

// RMS is a pure-Go energy classifier with hysteresis, so brief dips in
// level do not split an utterance.
type RMS struct {
	cfg          RMSConfig
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewRMS creates an RMS classifier.
func NewRMS(cfg RMSConfig) *RMS {
	return &RMS{cfg: cfg}
}

// IsSpeech feeds one frame and returns the current speech state.
func (v *RMS) IsSpeech(frame []float32) bool {
	level := Level(frame)

	if v.inSpeech {
		if level < v.cfg.SilenceThreshold {
			v.silenceCount++
			if v.silenceCount >= v.cfg.SilenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
		return v.inSpeech
	}

	if level >= v.cfg.SpeechThreshold {
		v.speechCount++
		if v.speechCount >= v.cfg.SpeechFrames {
			v.inSpeech = true
			v.speechCount = 0
		}
	} else {
		v.speechCount = 0
	}
	return v.inSpeech
}

// Reset clears internal state.
func (v *RMS) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

// Level returns the root mean square of frame.
func Level(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, x := range frame {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
