package audio

import (
	"context"
	"errors"
)

// ErrSinkClosed is returned by operations on a closed sink.
var ErrSinkClosed = errors.New("audio sink closed")

// Sink is an output device queue of 16-bit little-endian PCM.
// Implementations must be safe for concurrent use: Stop may be called
// while another goroutine is blocked in SleepUntilEnd.
type Sink interface {
	// Append queues pcm behind anything already queued.
	Append(pcm []byte) error
	// Play resumes output after Pause.
	Play()
	// Pause holds output without discarding queued audio.
	Pause()
	// Stop discards everything queued, including the current item.
	Stop()
	// IsEmpty reports whether nothing is playing or queued.
	IsEmpty() bool
	// SleepUntilEnd blocks until queued audio finishes, Stop is called,
	// or ctx ends.
	SleepUntilEnd(ctx context.Context) error
	// SetVolume sets the output gain in [0, 1].
	SetVolume(volume float64)
	// Close releases the device.
	Close() error
}

// Opener opens a sink on the system's current default output device.
type Opener func() (Sink, error)

// Format describes the PCM layout a sink expects.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the data rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// DefaultFormat matches the raw PCM returned by OpenAI-compatible services.
func DefaultFormat() Format {
	return Format{SampleRate: 24000, Channels: 1}
}
