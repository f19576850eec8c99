// Package bus connects a speech stream to NATS so remote producers can feed
// text and interrupt playback.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// Message types accepted on the input subject.
const (
	TypeToken    = "token"
	TypeComplete = "complete"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "speakstream"

// Message is a unit of producer input.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// StateEvent is published whenever the stream changes state.
type StateEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Speaker is the part of a speech stream the bridge drives.
type Speaker interface {
	AddToken(ctx context.Context, fragment string) ([]string, error)
	CompleteSentence(ctx context.Context) (bool, error)
	StopSpeech()
}

// Subjects derives the bridge subjects from a prefix.
type Subjects struct {
	Input string
	Stop  string
	State string
}

// NewSubjects returns the subjects under prefix.
func NewSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Subjects{
		Input: prefix + ".input",
		Stop:  prefix + ".stop",
		State: prefix + ".state",
	}
}

// Connect dials NATS with reconnect logging.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("no NATS url configured")
	}
	if logger == nil {
		logger = log.Default().WithPrefix("bus")
	}
	conn, err := nats.Connect(url,
		nats.Name("speakstream"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to NATS", "url", url)
	return conn, nil
}

// Bridge feeds NATS input into a Speaker and publishes its state changes.
// Input and stop use separate subscriptions, so a stop is handled even while
// input delivery is blocked on a full queue.
type Bridge struct {
	conn     *nats.Conn
	speaker  Speaker
	subjects Subjects
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewBridge creates a bridge; call Start to subscribe.
func NewBridge(parent context.Context, conn *nats.Conn, speaker Speaker, prefix string, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default().WithPrefix("bus")
	}
	ctx, cancel := context.WithCancel(parent)
	return &Bridge{
		conn:     conn,
		speaker:  speaker,
		subjects: NewSubjects(prefix),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subjects returns the subjects the bridge uses.
func (b *Bridge) Subjects() Subjects {
	return b.subjects
}

// Start subscribes to the input and stop subjects.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	input, err := b.conn.Subscribe(b.subjects.Input, b.handleInput)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subjects.Input, err)
	}
	stop, err := b.conn.Subscribe(b.subjects.Stop, b.handleStop)
	if err != nil {
		_ = input.Unsubscribe()
		return fmt.Errorf("subscribe %s: %w", b.subjects.Stop, err)
	}
	b.subs = append(b.subs, input, stop)

	// Make sure the server has registered interest before callers publish.
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	b.logger.Info("bridge listening", "input", b.subjects.Input, "stop", b.subjects.Stop)
	return nil
}

// Close unsubscribes and cancels any blocked input delivery.
func (b *Bridge) Close() {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			b.logger.Debug("unsubscribe failed", "subject", sub.Subject, "err", err)
		}
	}
	b.subs = nil
}

// PublishState announces a state transition.
func (b *Bridge) PublishState(from, to string) {
	data, err := json.Marshal(StateEvent{From: from, To: to, Timestamp: time.Now().UTC()})
	if err != nil {
		b.logger.Warn("failed to marshal state event", "err", err)
		return
	}
	if err := b.conn.Publish(b.subjects.State, data); err != nil {
		b.logger.Warn("failed to publish state", "err", err)
	}
}

func (b *Bridge) handleInput(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		b.logger.Warn("failed to decode input message", "err", err)
		return
	}

	switch m.Type {
	case TypeToken:
		if _, err := b.speaker.AddToken(b.ctx, m.Text); err != nil && b.ctx.Err() == nil {
			b.logger.Warn("failed to add token", "err", err)
		}
	case TypeComplete:
		if m.Text != "" {
			if _, err := b.speaker.AddToken(b.ctx, m.Text); err != nil && b.ctx.Err() == nil {
				b.logger.Warn("failed to add token", "err", err)
				return
			}
		}
		if _, err := b.speaker.CompleteSentence(b.ctx); err != nil && b.ctx.Err() == nil {
			b.logger.Warn("failed to complete sentence", "err", err)
		}
	default:
		b.logger.Warn("ignoring input message", "type", m.Type)
	}
}

func (b *Bridge) handleStop(*nats.Msg) {
	b.logger.Debug("stop requested")
	b.speaker.StopSpeech()
}
