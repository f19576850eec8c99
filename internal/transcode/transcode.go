// Package transcode changes the tempo of synthesized audio with ffmpeg's
// atempo filter.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/subprocess"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

// FFmpeg is a tts.Transcoder backed by the ffmpeg binary.
type FFmpeg struct {
	// Binary name or path (defaults to ffmpeg)
	Binary string

	// Raw PCM layout, needed because s16le carries no header
	SampleRate int
	Channels   int

	// Timeout bounds a single invocation when the caller's context has no deadline
	Timeout time.Duration

	Logger *log.Logger
}

// New returns an FFmpeg transcoder for the given PCM layout.
func New(binary string, sampleRate, channels int, timeout time.Duration) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		Binary:     binary,
		SampleRate: sampleRate,
		Channels:   channels,
		Timeout:    timeout,
		Logger:     log.Default().WithPrefix("ffmpeg"),
	}
}

// Args builds the ffmpeg command line for a tempo change.
func (f *FFmpeg) Args(in, out string, tempo float64, format tts.Format) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	args = append(args, f.rawArgs(format)...)
	args = append(args, "-i", in)
	args = append(args, "-filter:a", "atempo="+strconv.FormatFloat(tempo, 'f', -1, 64), "-vn")
	switch format {
	case tts.FormatPCM:
		args = append(args, f.rawArgs(format)...)
	case tts.FormatWAV:
		args = append(args, "-f", "wav")
	}
	return append(args, out)
}

func (f *FFmpeg) rawArgs(format tts.Format) []string {
	if format != tts.FormatPCM {
		return nil
	}
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
	}
}

// Transcode implements tts.Transcoder. Launch failures and non-zero exits
// are returned as transcode-class TTSErrors.
func (f *FFmpeg) Transcode(ctx context.Context, in, out string, tempo float64, format tts.Format) error {
	if err := tts.ValidateSpeed(tempo); err != nil {
		return tts.NewTTSError(tts.ErrorCodeTranscodeFailed, "invalid tempo", err)
	}
	if !format.Valid() {
		return tts.NewTTSError(tts.ErrorCodeTranscodeFailed, "cannot transcode format "+string(format), tts.ErrUnsupportedFormat)
	}

	if _, ok := ctx.Deadline(); !ok && f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.Command(f.Binary, f.Args(in, out, tempo, format)...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := subprocess.Run(ctx, cmd, subprocess.DefaultGracePeriod)
	switch {
	case err == nil:
		f.logger().Debug("tempo applied", "tempo", tempo, "duration", time.Since(start))
		return nil
	case errors.Is(err, subprocess.ErrNotStarted):
		return tts.NewTTSError(tts.ErrorCodeTranscoderMissing, "could not launch "+f.Binary, errors.Join(tts.ErrTranscoderMissing, err))
	default:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "transcoder failed"
		}
		return tts.NewTTSError(tts.ErrorCodeTranscodeFailed, msg, err).
			WithContext("tempo", tempo)
	}
}

func (f *FFmpeg) logger() *log.Logger {
	if f.Logger == nil {
		return log.Default()
	}
	return f.Logger
}

// String describes the transcoder for logs.
func (f *FFmpeg) String() string {
	return fmt.Sprintf("%s (%d Hz, %d ch)", f.Binary, f.SampleRate, f.Channels)
}
