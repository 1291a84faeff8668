package stt_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/stt"
)

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := stt.NewOpenAI(); !errors.Is(err, stt.ErrNoAPIKey) {
		t.Errorf("NewOpenAI() error = %v, want ErrNoAPIKey", err)
	}
}

func TestOpenAI_Transcribe(t *testing.T) {
	var gotModel, gotFile, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			gotFile = hdr.Filename
			gotBody, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " Wie spät ist es? "})
	}))
	defer srv.Close()

	tr, err := stt.NewOpenAI(
		stt.WithAPIKey("sk-test"),
		stt.WithBaseURL(srv.URL+"/"),
		stt.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	defer tr.Close()

	text, err := tr.Transcribe(context.Background(), []byte("RIFFdata"), stt.DefaultFilename)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "Wie spät ist es?" {
		t.Errorf("text = %q", text)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotFile != "speech.wav" {
		t.Errorf("filename = %q, want speech.wav", gotFile)
	}
	if string(gotBody) != "RIFFdata" {
		t.Errorf("body = %q", gotBody)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestOpenAI_TranscribeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	tr, err := stt.NewOpenAI(stt.WithAPIKey("sk-test"), stt.WithBaseURL(srv.URL+"/"), stt.WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	_, err = tr.Transcribe(context.Background(), []byte("RIFF"), "")
	if !errors.Is(err, stt.ErrTranscriptionFailed) {
		t.Errorf("Transcribe() error = %v, want ErrTranscriptionFailed", err)
	}
	var te *stt.TranscriptionError
	if !errors.As(err, &te) || te.Backend != "openai" {
		t.Errorf("error = %#v, want *TranscriptionError from openai", err)
	}
}
