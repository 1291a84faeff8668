package wav

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeHeader(t *testing.T) {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 10))
	}

	b, err := Encode(samples, 16000)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if len(b) != HeaderSize+2*len(samples) {
		t.Fatalf("len = %d, want %d", len(b), HeaderSize+2*len(samples))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Errorf("unexpected chunk markers: %q %q %q", b[0:4], b[8:12], b[36:40])
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(b[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(b[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(b[40:44]); got != uint32(2*len(samples)) {
		t.Errorf("data size = %d, want %d", got, 2*len(samples))
	}
}

func TestEncodeClampsAndScales(t *testing.T) {
	b, err := Encode([]float32{2, -2, 0.5}, 16000)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	pcm := b[HeaderSize:]
	want := []int16{0x7fff, -0x7fff, 16383}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeRejectsBadRate(t *testing.T) {
	if _, err := Encode([]float32{0}, 0); err == nil {
		t.Error("Encode with zero rate should fail")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.5}
	b, err := Encode(in, 8000)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out, rate, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1e-3 {
			t.Errorf("sample %d = %f, want ~%f", i, out[i], in[i])
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, _, err := Decode([]byte("not a wav file at all")); !errors.Is(err, ErrInvalid) {
		t.Errorf("Decode err = %v, want ErrInvalid", err)
	}
}
