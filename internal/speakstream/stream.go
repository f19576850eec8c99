package speakstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/metrics"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/sentence"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

const (
	// DefaultVoice is used when Options.Voice is empty.
	DefaultVoice = "alloy"
	// DefaultRequestTimeout bounds a synthesis call up to the first byte.
	DefaultRequestTimeout = 15 * time.Second
	// DefaultSaveTimeout bounds materializing the audio stream to disk.
	DefaultSaveTimeout = 10 * time.Second
)

var (
	// ErrClosed is returned by operations on a closed stream.
	ErrClosed = errors.New("speakstream: stream is closed")
	// ErrNoSynthesizer is returned by New when Options.Synthesizer is nil.
	ErrNoSynthesizer = errors.New("speakstream: no synthesizer configured")
	// ErrInvalidVoice is returned for an empty voice identifier.
	ErrInvalidVoice = errors.New("speakstream: voice must not be empty")
)

// AudioCache stores synthesized audio by cache key.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Options configures a Stream.
type Options struct {
	Synthesizer tts.Synthesizer // Required
	Transcoder  tts.Transcoder  // Needed for speeds other than 1.0
	Cache       AudioCache      // Optional

	Opener audio.Opener      // Defaults to the oto backend
	Probe  audio.DeviceProbe // Defaults to a static device name
	Format audio.Format      // Output PCM format

	AudioFormat tts.Format // Format requested from the synthesizer
	Voice       string
	Speed       float64

	QueueCapacity  int
	RequestTimeout time.Duration
	SaveTimeout    time.Duration
	Sentence       sentence.Options

	// FallbackCue is played in place of a failed sentence.
	// Defaults to audio.FallbackCue(Format).
	FallbackCue []byte
	// TempDir holds synthesized audio files. Defaults to os.TempDir().
	TempDir string

	Metrics       *metrics.Metrics
	Logger        *log.Logger
	OnStateChange func(from, to State)
}

func (o Options) withDefaults() Options {
	if o.Format.SampleRate <= 0 || o.Format.Channels <= 0 {
		o.Format = audio.DefaultFormat()
	}
	if o.Opener == nil {
		o.Opener = audio.NewOtoOpener(o.Format)
	}
	if o.AudioFormat == "" {
		o.AudioFormat = tts.FormatPCM
	}
	if o.Voice == "" {
		o.Voice = DefaultVoice
	}
	if o.Speed == 0 {
		o.Speed = tts.DefaultSpeed
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = queue.DefaultCapacity
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = DefaultSaveTimeout
	}
	if o.Sentence == (sentence.Options{}) {
		o.Sentence = sentence.DefaultOptions()
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.Logger == nil {
		o.Logger = log.Default().WithPrefix("speakstream")
	}
	return o
}

// Stream is a running speech pipeline. AddToken and CompleteSentence are
// meant to be called from a single producer; StopSpeech, the setters and
// the accessors are safe to call from any goroutine.
type Stream struct {
	opts    Options
	logger  *log.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex // guards acc, nextIdx, voice, speed, and closed against jobs.Add
	acc      *sentence.Accumulator
	nextIdx  uint64
	voice    string
	speed    float64
	buffered atomic.Int64

	epoch   atomic.Uint64
	muted   atomic.Bool
	playing atomic.Bool
	closed  atomic.Bool

	queue     *queue.ReleaseQueue
	mailbox   chan tts.Result
	interrupt chan struct{}
	device    *audio.DeviceSink
	cue       []byte

	pending *tracker
	stateMu sync.Mutex // serializes state derivation
	state   *StateMachine
	jobs    sync.WaitGroup

	group     *errgroup.Group
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New opens the output device and starts the release and playback workers.
// A device that cannot be opened is fatal and reported as a
// DEVICE_UNAVAILABLE error.
func New(ctx context.Context, opts Options) (*Stream, error) {
	if opts.Synthesizer == nil {
		return nil, ErrNoSynthesizer
	}
	opts = opts.withDefaults()
	if err := tts.ValidateSpeed(opts.Speed); err != nil {
		return nil, err
	}
	if !opts.AudioFormat.Valid() {
		return nil, fmt.Errorf("%w: %q", tts.ErrUnsupportedFormat, opts.AudioFormat)
	}

	device, err := audio.NewDeviceSink(ctx, opts.Opener, opts.Probe, opts.Logger.WithPrefix("audio"))
	if err != nil {
		return nil, err
	}

	s := &Stream{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		acc:       sentence.NewAccumulator(opts.Sentence),
		voice:     opts.Voice,
		speed:     opts.Speed,
		queue:     queue.New(opts.QueueCapacity),
		mailbox:   make(chan tts.Result, opts.QueueCapacity),
		interrupt: make(chan struct{}, 1),
		device:    device,
		cue:       opts.FallbackCue,
		pending:   newTracker(),
		state:     NewStateMachine(),
	}
	if len(s.cue) == 0 {
		s.cue = audio.FallbackCue(opts.Format)
	}
	device.OnSwap = func(from, to string) {
		s.metrics.DeviceSwapped()
	}
	if opts.OnStateChange != nil {
		s.state.OnChange(opts.OnStateChange)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g
	g.Go(func() error { return s.releaseLoop(gctx) })
	g.Go(func() error { return s.playbackLoop(gctx) })

	s.logger.Debug("stream started",
		"engine", opts.Synthesizer.Name(),
		"voice", opts.Voice,
		"speed", opts.Speed,
		"format", opts.AudioFormat,
		"queue", opts.QueueCapacity)
	return s, nil
}

// AddToken appends a text fragment and dispatches every sentence it
// completes. It blocks while the release queue is full and returns the
// dispatched sentences.
func (s *Stream) AddToken(ctx context.Context, fragment string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.Lock()
	sentences := s.acc.AddToken(fragment)
	jobs := s.newJobsLocked(sentences)
	s.mu.Unlock()
	s.refreshState()

	return sentences, s.dispatch(ctx, jobs)
}

// CompleteSentence flushes the buffered remainder as a final sentence.
// It reports false when nothing was buffered.
func (s *Stream) CompleteSentence(ctx context.Context) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	s.mu.Lock()
	text, ok := s.acc.CompleteSentence()
	var jobs []tts.Job
	if ok {
		jobs = s.newJobsLocked([]string{text})
	} else {
		s.buffered.Store(0)
	}
	s.mu.Unlock()
	s.refreshState()

	return ok, s.dispatch(ctx, jobs)
}

func (s *Stream) newJobsLocked(sentences []string) []tts.Job {
	s.buffered.Store(int64(s.acc.Len()))
	if len(sentences) == 0 {
		return nil
	}
	epoch := s.epoch.Load()
	jobs := make([]tts.Job, 0, len(sentences))
	for _, text := range sentences {
		jobs = append(jobs, tts.Job{
			Index: s.nextIdx,
			Epoch: epoch,
			Text:  text,
			Voice: s.voice,
			Speed: s.speed,
		})
		s.nextIdx++
	}
	s.pending.add(len(jobs))
	return jobs
}

// StopSpeech discards buffered text, cancels every pending job, and stops
// the item currently playing. Jobs submitted afterwards play normally.
func (s *Stream) StopSpeech() {
	s.mu.Lock()
	s.acc.ClearBuffer()
	s.buffered.Store(0)
	epoch := s.epoch.Add(1)
	s.mu.Unlock()

	drained := s.queue.Drain()
	for _, t := range drained {
		s.pending.done()
		go func(t *queue.Ticket) {
			<-t.Done()
			s.discard(t.Result())
		}(t)
	}
	mailed := s.drainMailbox()

	select {
	case s.interrupt <- struct{}{}:
	default:
	}

	s.metrics.Interrupted()
	s.metrics.SetQueueDepth(s.queue.Len())
	s.stateMu.Lock()
	if s.state.Transition(StateInterrupted) {
		s.state.Transition(StateIdle)
	}
	s.stateMu.Unlock()
	s.refreshState()
	s.logger.Info("speech interrupted", "epoch", epoch, "canceled", len(drained)+mailed)
}

// SetVoice changes the voice used for sentences extracted after the call.
func (s *Stream) SetVoice(voice string) error {
	if voice == "" {
		return ErrInvalidVoice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = voice
	return nil
}

// Voice returns the current voice.
func (s *Stream) Voice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// SetSpeed changes the tempo used for sentences extracted after the call.
func (s *Stream) SetSpeed(speed float64) error {
	if err := tts.ValidateSpeed(speed); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = speed
	return nil
}

// Speed returns the current tempo multiplier.
func (s *Stream) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Mute silences output without stopping playback.
func (s *Stream) Mute() {
	s.muted.Store(true)
	s.device.SetVolume(0)
}

// Unmute restores full output volume.
func (s *Stream) Unmute() {
	s.muted.Store(false)
	s.device.SetVolume(1)
}

// Muted reports whether output is muted.
func (s *Stream) Muted() bool {
	return s.muted.Load()
}

// State returns the current session state.
func (s *Stream) State() State {
	return s.state.Current()
}

// Pending returns the number of sentences not yet played or discarded.
func (s *Stream) Pending() int {
	return s.pending.count()
}

// Device returns the name of the output device in use.
func (s *Stream) Device() string {
	return s.device.Device()
}

// Wait blocks until every dispatched sentence has been played or discarded.
func (s *Stream) Wait(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.pending.wait(ctx)
}

// Close stops speech, waits for the workers to exit, and releases the
// output device.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.StopSpeech()
		// Dispatch checks the flag under mu before adding to jobs, so no
		// synthesis starts once Wait below is reached.
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()
		s.queue.Close()
		s.cancel()

		s.jobs.Wait()
		err := s.group.Wait()
		// Results released after the final drain.
		for _, t := range s.queue.Drain() {
			s.discard(t.Result())
		}
		s.drainMailbox()

		s.closeErr = errors.Join(err, s.device.Close())
		s.logger.Debug("stream closed")
	})
	return s.closeErr
}

// refreshState derives the session state from pipeline activity.
func (s *Stream) refreshState() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	var target State
	switch {
	case s.playing.Load():
		target = StatePlaying
	case s.pending.count() > 0:
		target = StateDispatching
	case s.buffered.Load() > 0:
		target = StateAccumulating
	default:
		target = StateIdle
	}
	s.state.Transition(target)
}

// discard removes a result's audio without playing it.
func (s *Stream) discard(r tts.Result) {
	if err := r.Discard(); err != nil {
		s.logger.Debug("failed to remove audio", "path", r.Audio.Path, "err", err)
	}
}

// drainMailbox discards every released result not yet picked up by playback.
func (s *Stream) drainMailbox() int {
	n := 0
	for {
		select {
		case r := <-s.mailbox:
			s.discard(r)
			s.pending.done()
			s.metrics.Playback(metrics.OutcomeDiscarded)
			n++
		default:
			return n
		}
	}
}

// stale reports whether a job predates the most recent interrupt.
func (s *Stream) stale(job tts.Job) bool {
	return job.Epoch != s.epoch.Load()
}
