package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

// DecodeFile reads synthesized audio and converts it to PCM in format f.
func DecodeFile(h *tts.AudioHandle, f Format) ([]byte, error) {
	if h == nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "no audio", nil)
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "failed to open audio", err)
	}
	pcm, err := Decode(data, h.Format, f)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodePlaybackFailed, "failed to decode audio", err).
			WithContext("path", h.Path)
	}
	return pcm, nil
}

// Decode converts data in format src to PCM in format f.
// Raw PCM is assumed to already match f.
func Decode(data []byte, src tts.Format, f Format) ([]byte, error) {
	switch src {
	case tts.FormatPCM:
		if len(data)%2 != 0 {
			data = data[:len(data)-1]
		}
		return data, nil
	case tts.FormatWAV:
		return decodeWAV(bytes.NewReader(data), f)
	default:
		return nil, fmt.Errorf("%w: %q", tts.ErrUnsupportedFormat, src)
	}
}

func decodeWAV(r io.ReadSeeker, f Format) ([]byte, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", tts.ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav samples: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: wav header missing format", tts.ErrUnsupportedFormat)
	}

	samples := to16(buf)
	samples = remix(samples, buf.Format.NumChannels, f.Channels)
	samples = resample(samples, f.Channels, buf.Format.SampleRate, f.SampleRate)

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// to16 scales integer samples of any source depth to 16 bits.
func to16(buf *goaudio.IntBuffer) []int16 {
	depth := buf.SourceBitDepth
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			v = (v - 128) << 8
		case depth > 16:
			v >>= depth - 16
		}
		out[i] = int16(v)
	}
	return out
}

// remix converts interleaved samples between mono and multi-channel layouts.
func remix(in []int16, from, to int) []int16 {
	if from == to {
		return in
	}
	frames := len(in) / from
	out := make([]int16, frames*to)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < from; c++ {
			sum += int(in[i*from+c])
		}
		mono := int16(sum / from)
		for c := 0; c < to; c++ {
			if from > 1 && to > 1 && c < from {
				out[i*to+c] = in[i*from+c]
			} else {
				out[i*to+c] = mono
			}
		}
	}
	return out
}

// resample converts the sample rate with linear interpolation.
func resample(in []int16, channels, from, to int) []int16 {
	if from == to || len(in) == 0 {
		return in
	}
	frames := len(in) / channels
	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]int16, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		frac := pos - float64(j)
		for c := 0; c < channels; c++ {
			a := float64(in[j*channels+c])
			b := a
			if j+1 < frames {
				b = float64(in[(j+1)*channels+c])
			}
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
