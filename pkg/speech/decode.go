package speech

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/tts"
	"github.com/teslashibe/go-kira/pkg/wav"
)

// Decode turns a synthesis result into mono PCM16 and its sample rate.
func Decode(res *tts.AudioResult) ([]int16, int, error) {
	switch res.Format.Encoding {
	case tts.EncodingMP3:
		// go-mp3 always yields 16-bit little-endian stereo.
		d, err := mp3.NewDecoder(bytes.NewReader(res.Audio))
		if err != nil {
			return nil, 0, fmt.Errorf("mp3: %w", err)
		}
		pcm, err := io.ReadAll(d)
		if err != nil {
			return nil, 0, fmt.Errorf("mp3: %w", err)
		}
		if len(pcm) == 0 {
			return nil, 0, errors.New("mp3: no audio frames")
		}
		return audioio.StereoToMono(audioio.BytesToSamples(pcm)), d.SampleRate(), nil

	case tts.EncodingPCM:
		rate := res.Format.SampleRate
		if rate == 0 {
			rate = tts.SampleRateFromEncoding(tts.EncodingPCM)
		}
		samples := audioio.BytesToSamples(res.Audio)
		if res.Format.Channels == 2 {
			samples = audioio.StereoToMono(samples)
		}
		return samples, rate, nil

	case tts.EncodingWAV:
		samples, rate, err := wav.Decode(res.Audio)
		if err != nil {
			return nil, 0, err
		}
		return audioio.Float32ToInt16(samples), rate, nil

	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, res.Format.Encoding)
	}
}
