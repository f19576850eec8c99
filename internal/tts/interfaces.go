package tts

import (
	"context"
	"io"
)

// Synthesizer is a speech-synthesis service.
// Implementations must honor ctx cancellation for the network round-trip;
// the returned stream is read by the caller under a separate deadline.
type Synthesizer interface {
	// Synthesize starts producing audio for req in req.Format.
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)

	// Name identifies the engine in logs.
	Name() string
}

// Transcoder rewrites an audio file at a different tempo.
type Transcoder interface {
	// Transcode reads in, applies tempo and writes out in the same format.
	Transcode(ctx context.Context, in, out string, tempo float64, format Format) error
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// Name implements Synthesizer.
func (f SynthesizerFunc) Name() string {
	return "func"
}
