// Package wav encodes captured speech into the RIFF/WAVE container the
// transcription backends accept, and decodes it back for local inference.
//
// Output is always 16-bit PCM mono with a 44-byte header.
package wav

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// HeaderSize is the length of the canonical PCM header.
	HeaderSize = 44
	bitDepth   = 16
	pcmFormat  = 1
)

// ErrInvalid is returned by Decode for data that is not a WAV file.
var ErrInvalid = errors.New("wav: invalid file")

// Encode converts float samples in [-1, 1] to a mono PCM16 WAV file.
// Samples outside the range are clamped.
func Encode(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: sample rate must be positive, got %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 0x7fff)
	}

	ws := &seekBuffer{}
	enc := wav.NewEncoder(ws, sampleRate, bitDepth, 1, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: finalize: %w", err)
	}
	return ws.Bytes(), nil
}

// EncodePCM16 wraps already-quantized mono samples.
func EncodePCM16(samples []int16, sampleRate int) ([]byte, error) {
	f := make([]float32, len(samples))
	for i, s := range samples {
		f[i] = float32(s) / 0x7fff
	}
	return Encode(f, sampleRate)
}

// Decode reads a WAV file into mono float samples and returns its rate.
// Multi-channel input is downmixed.
func Decode(b []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalid
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav: decode: %w", err)
	}
	if pb == nil || pb.Format == nil {
		return nil, 0, ErrInvalid
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = bitDepth
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))

	ch := pb.Format.NumChannels
	if ch < 1 {
		ch = 1
	}
	frames := len(pb.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(pb.Data[i*ch+c]) * scale
		}
		out[i] = float32(sum / float64(ch))
	}
	return out, pb.Format.SampleRate, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the encoder seeks back to
// patch the chunk sizes on Close.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		if end > cap(s.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, s.buf)
			s.buf = grown
		} else {
			s.buf = s.buf[:end]
		}
	}
	copy(s.buf[s.pos:], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case 0:
		abs = offset
	case 1:
		abs = int64(s.pos) + offset
	case 2:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("wav: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("wav: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}

func (s *seekBuffer) Bytes() []byte { return s.buf }
