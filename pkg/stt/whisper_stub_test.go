//go:build !whisper

package stt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-kira/pkg/stt"
)

func TestWhisperStub(t *testing.T) {
	if _, err := stt.NewWhisper(stt.WithModelPath("model.bin")); !errors.Is(err, stt.ErrWhisperUnavailable) {
		t.Errorf("NewWhisper() error = %v, want ErrWhisperUnavailable", err)
	}
	var w stt.Whisper
	if _, err := w.Transcribe(context.Background(), nil, ""); !errors.Is(err, stt.ErrWhisperUnavailable) {
		t.Errorf("Transcribe() error = %v, want ErrWhisperUnavailable", err)
	}
}
