package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockSink simulates an output device for testing. Each appended buffer
// "plays" for Duration(pcm) and playback events are recorded in order.
type MockSink struct {
	// Duration computes simulated play time; defaults to 24kHz mono rate
	Duration func(pcm []byte) time.Duration
	// Label names a buffer in recorded events; defaults to string(pcm)
	Label func(pcm []byte) string
	// AppendErr is returned by Append when set
	AppendErr error

	mu      sync.Mutex
	queue   [][]byte
	playing []byte
	endsAt  time.Time
	paused  bool
	volume  float64
	closed  bool
	events  []string
	stopped chan struct{}
	wake    chan struct{}

	stopCount   atomic.Int64
	appendCount atomic.Int64
}

// NewMockSink creates a mock sink where every buffer plays for d.
func NewMockSink(d time.Duration) *MockSink {
	return &MockSink{
		Duration: func([]byte) time.Duration { return d },
		volume:   1.0,
		stopped:  make(chan struct{}),
		wake:     make(chan struct{}),
	}
}

// MockOpener returns an Opener that yields the given sinks in order,
// repeating the last one.
func MockOpener(sinks ...*MockSink) Opener {
	var mu sync.Mutex
	i := 0
	return func() (Sink, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(sinks) == 0 {
			return nil, errors.New("no mock sinks")
		}
		s := sinks[min(i, len(sinks)-1)]
		i++
		return s, nil
	}
}

func (m *MockSink) label(pcm []byte) string {
	if m.Label != nil {
		return m.Label(pcm)
	}
	return string(pcm)
}

func (m *MockSink) duration(pcm []byte) time.Duration {
	if m.Duration != nil {
		return m.Duration(pcm)
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(DefaultFormat().BytesPerSecond())
}

// Append implements Sink.
func (m *MockSink) Append(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSinkClosed
	}
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.appendCount.Add(1)
	m.queue = append(m.queue, pcm)
	m.advanceLocked(time.Now())
	m.signalLocked()
	return nil
}

func (m *MockSink) advanceLocked(now time.Time) {
	if m.paused {
		return
	}
	if m.playing != nil && now.Before(m.endsAt) {
		return
	}
	if m.playing != nil {
		m.events = append(m.events, "done:"+m.label(m.playing))
		m.playing = nil
	}
	if len(m.queue) > 0 {
		m.playing = m.queue[0]
		m.queue = m.queue[1:]
		m.endsAt = now.Add(m.duration(m.playing))
		m.events = append(m.events, "play:"+m.label(m.playing))
	}
}

func (m *MockSink) initLocked() {
	if m.stopped == nil {
		m.stopped = make(chan struct{})
		m.wake = make(chan struct{})
	}
}

func (m *MockSink) signalLocked() {
	m.initLocked()
	close(m.wake)
	m.wake = make(chan struct{})
}

// Play implements Sink.
func (m *MockSink) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.advanceLocked(time.Now())
	m.signalLocked()
}

// Pause implements Sink. Simulated time does not pause mid-buffer.
func (m *MockSink) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Stop implements Sink.
func (m *MockSink) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopCount.Add(1)
	if m.playing != nil {
		m.events = append(m.events, "stop:"+m.label(m.playing))
		m.playing = nil
	}
	m.queue = nil
	m.initLocked()
	close(m.stopped)
	m.stopped = make(chan struct{})
}

// IsEmpty implements Sink.
func (m *MockSink) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceLocked(time.Now())
	return m.playing == nil && len(m.queue) == 0
}

// SleepUntilEnd implements Sink.
func (m *MockSink) SleepUntilEnd(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrSinkClosed
		}
		m.initLocked()
		now := time.Now()
		m.advanceLocked(now)
		if m.playing == nil && len(m.queue) == 0 {
			m.mu.Unlock()
			return nil
		}
		wait := time.Millisecond
		if m.playing != nil && !m.paused {
			wait = m.endsAt.Sub(now)
		}
		stopped, wake := m.stopped, m.wake
		m.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stopped:
			timer.Stop()
			return nil
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// SetVolume implements Sink.
func (m *MockSink) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(v)
}

// Close implements Sink.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.events = append(m.events, "close")
		m.initLocked()
		close(m.stopped)
		m.stopped = make(chan struct{})
	}
	return nil
}

// Events returns the recorded play/done/stop events in order.
func (m *MockSink) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Volume returns the current volume.
func (m *MockSink) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Paused reports whether the sink is paused.
func (m *MockSink) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Closed reports whether Close was called.
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// StopCount returns how many times Stop was called.
func (m *MockSink) StopCount() int {
	return int(m.stopCount.Load())
}

// AppendCount returns how many buffers were accepted.
func (m *MockSink) AppendCount() int {
	return int(m.appendCount.Load())
}
