package engines

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

// MockEngine is a scriptable synthesizer for tests and dry runs.
type MockEngine struct {
	// Delay applied to every request unless overridden in Delays
	Delay time.Duration
	// Per-text request delays
	Delays map[string]time.Duration
	// Per-text failures
	Failures map[string]error
	// Per-text delays before the returned stream yields any data
	ReadDelays map[string]time.Duration
	// IgnoreContext makes the request delay uninterruptible
	IgnoreContext bool
	// Audio produces the payload for a text; defaults to 100ms of 24kHz silence
	Audio func(text string) []byte

	calls    atomic.Int64
	inFlight atomic.Int64
	mu       sync.Mutex
	requests []tts.Request
	canceled []string
}

// Name implements tts.Synthesizer.
func (m *MockEngine) Name() string {
	return "mock"
}

// Synthesize implements tts.Synthesizer.
func (m *MockEngine) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	m.calls.Add(1)
	m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	delay := m.Delay
	if d, ok := m.Delays[req.Text]; ok {
		delay = d
	}
	failure := m.Failures[req.Text]
	readDelay := m.ReadDelays[req.Text]
	m.mu.Unlock()

	if delay > 0 {
		if m.IgnoreContext {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.mu.Lock()
				m.canceled = append(m.canceled, req.Text)
				m.mu.Unlock()
				return nil, ctx.Err()
			}
		}
	}

	if failure != nil {
		return nil, failure
	}

	data := silence(req.Text)
	if m.Audio != nil {
		data = m.Audio(req.Text)
	}
	return &slowReader{data: data, delay: readDelay}, nil
}

// Calls returns the number of Synthesize invocations.
func (m *MockEngine) Calls() int {
	return int(m.calls.Load())
}

// InFlight returns the number of requests currently being served.
func (m *MockEngine) InFlight() int {
	return int(m.inFlight.Load())
}

// Requests returns a copy of all received requests in arrival order.
func (m *MockEngine) Requests() []tts.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tts.Request(nil), m.requests...)
}

// Canceled returns texts whose requests observed context cancellation.
func (m *MockEngine) Canceled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.canceled...)
}

func silence(string) []byte {
	return make([]byte, 24000*2/10)
}

type slowReader struct {
	data  []byte
	delay time.Duration
	off   int
	once  sync.Once
}

func (r *slowReader) Read(p []byte) (int, error) {
	r.once.Do(func() {
		if r.delay > 0 {
			time.Sleep(r.delay)
		}
	})
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func (r *slowReader) Close() error {
	return nil
}

// ErrMockFailure is a convenience failure for scripted engines.
var ErrMockFailure = errors.New("mock synthesis failure")
