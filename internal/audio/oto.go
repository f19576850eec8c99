package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so every OtoSink shares one.
var (
	sharedMu     sync.Mutex
	sharedCtx    *oto.Context
	sharedFormat Format
)

func otoContext(f Format) (*oto.Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		if f != sharedFormat {
			return nil, fmt.Errorf("audio context already open at %d Hz/%d ch, requested %d Hz/%d ch",
				sharedFormat.SampleRate, sharedFormat.Channels, f.SampleRate, f.Channels)
		}
		return sharedCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	sharedCtx = ctx
	sharedFormat = f
	return ctx, nil
}

// NewOtoOpener returns an Opener for the system audio output.
// oto cannot address devices by name. Reopening suspends and resumes the
// shared context so the platform mixer attaches new streams to whatever
// device is now the default.
func NewOtoOpener(f Format) Opener {
	var opened bool
	return func() (Sink, error) {
		ctx, err := otoContext(f)
		if err != nil {
			return nil, err
		}
		if opened {
			if err := ctx.Suspend(); err != nil {
				return nil, fmt.Errorf("suspend audio context: %w", err)
			}
			if err := ctx.Resume(); err != nil {
				return nil, fmt.Errorf("resume audio context: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("audio context failed: %w", err)
		}
		opened = true
		return &OtoSink{ctx: ctx, volume: 1.0}, nil
	}
}

// OtoSink plays queued PCM buffers one after another on an oto context.
type OtoSink struct {
	ctx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	current []byte   // kept alive while the player reads it
	pending [][]byte // queued behind current
	paused  bool
	volume  float64
	closed  bool

	// stopped is closed by Stop so SleepUntilEnd returns immediately.
	stopped chan struct{}
}

// pollInterval bounds how late SleepUntilEnd notices the end of an item;
// oto has no completion callback.
const pollInterval = 10 * time.Millisecond

// Append implements Sink.
func (s *OtoSink) Append(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	s.pending = append(s.pending, data)
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
	s.advanceLocked()
	return nil
}

// advanceLocked starts the next pending buffer when nothing is playing.
func (s *OtoSink) advanceLocked() {
	if s.paused || len(s.pending) == 0 {
		return
	}
	if s.player != nil && (s.player.IsPlaying() || s.player.BufferedSize() > 0) {
		return
	}
	s.releasePlayerLocked()

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	s.player = s.ctx.NewPlayer(bytes.NewReader(s.current))
	s.player.SetVolume(s.volume)
	s.player.Play()
}

func (s *OtoSink) releasePlayerLocked() {
	if s.player != nil {
		s.player.Pause()
		_ = s.player.Close()
		s.player = nil
	}
	s.current = nil
}

// Play implements Sink.
func (s *OtoSink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = false
	if s.player != nil {
		s.player.Play()
	}
	s.advanceLocked()
}

// Pause implements Sink.
func (s *OtoSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paused = true
	if s.player != nil {
		s.player.Pause()
	}
}

// Stop implements Sink.
func (s *OtoSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releasePlayerLocked()
	s.pending = nil
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
}

// IsEmpty implements Sink.
func (s *OtoSink) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emptyLocked()
}

func (s *OtoSink) emptyLocked() bool {
	if len(s.pending) > 0 {
		return false
	}
	return s.player == nil || (!s.player.IsPlaying() && s.player.BufferedSize() == 0 && !s.paused)
}

// SleepUntilEnd implements Sink.
func (s *OtoSink) SleepUntilEnd(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSinkClosed
		}
		s.advanceLocked()
		if s.emptyLocked() {
			s.releasePlayerLocked()
			s.mu.Unlock()
			return nil
		}
		stopped := s.stopped
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return nil
		case <-ticker.C:
		}
	}
}

// SetVolume implements Sink.
func (s *OtoSink) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clampVolume(volume)
	if s.player != nil {
		s.player.SetVolume(s.volume)
	}
}

// Close implements Sink. The shared context stays open for later sinks.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.releasePlayerLocked()
	s.pending = nil
	s.closed = true
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
	return nil
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
