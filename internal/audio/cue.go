package audio

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

// FallbackCue synthesizes the short descending two-tone played in place of a
// sentence that failed to synthesize.
func FallbackCue(f Format) []byte {
	tones := []struct {
		freq float64
		ms   int
	}{
		{880, 120},
		{0, 40},
		{587.33, 180},
	}

	var samples []int16
	for _, tone := range tones {
		n := f.SampleRate * tone.ms / 1000
		fade := n / 10
		for i := 0; i < n; i++ {
			amp := 0.3
			if fade > 0 && i < fade {
				amp *= float64(i) / float64(fade)
			} else if fade > 0 && i > n-fade {
				amp *= float64(n-i) / float64(fade)
			}
			v := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*tone.freq*float64(i)/float64(f.SampleRate)))
			for c := 0; c < f.Channels; c++ {
				samples = append(samples, v)
			}
		}
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// LoadCue reads a WAV file to use as the fallback cue. An empty path
// returns the built-in cue.
func LoadCue(path string, f Format) ([]byte, error) {
	if path == "" {
		return FallbackCue(f), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, tts.FormatWAV, f)
}
