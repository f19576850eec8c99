package speakstream

import (
	"context"
	"errors"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/metrics"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

// releaseLoop hands results to playback in submission order. Results from
// before the latest interrupt are dropped here.
func (s *Stream) releaseLoop(ctx context.Context) error {
	for {
		r, err := s.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.metrics.SetQueueDepth(s.queue.Len())

		if s.stale(r.Job) || errors.Is(r.Err, tts.ErrCanceled) {
			s.drop(r)
			continue
		}
		select {
		case s.mailbox <- r:
		case <-ctx.Done():
			s.drop(r)
			return nil
		}
	}
}

// playbackLoop owns the output device and plays released results one at a time.
func (s *Stream) playbackLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.mailbox:
			s.play(ctx, r)
			s.refreshState()
		}
	}
}

// play outputs one result: its audio on success, the fallback cue on
// failure. It returns early when interrupted.
func (s *Stream) play(ctx context.Context, r tts.Result) {
	defer s.pending.done()
	defer s.discard(r)

	// Interrupts raised before this item was dequeued do not apply to it.
	s.drainInterrupts()
	if s.stale(r.Job) {
		s.metrics.Playback(metrics.OutcomeDiscarded)
		return
	}

	if _, err := s.device.Sync(ctx); err != nil {
		s.logger.Warn("output device change failed, keeping current device", "err", err)
	}

	outcome := metrics.OutcomePlayed
	var pcm []byte
	if r.OK() {
		var err error
		pcm, err = audio.DecodeFile(r.Audio, s.opts.Format)
		if err != nil {
			s.logger.Warn("skipping undecodable audio", "index", r.Job.Index, "err", err)
			s.metrics.Playback(metrics.OutcomeFailed)
			return
		}
	} else {
		s.logger.Warn("playing fallback cue", "index", r.Job.Index, "text", r.Text(), "reason", r.Message())
		pcm = s.cue
		outcome = metrics.OutcomeCue
	}

	if s.stale(r.Job) {
		s.metrics.Playback(metrics.OutcomeDiscarded)
		return
	}

	sink := s.device.Sink()
	sink.Stop()
	if err := sink.Append(pcm); err != nil {
		s.logger.Error("playback failed", "index", r.Job.Index,
			"err", tts.NewTTSError(tts.ErrorCodePlaybackFailed, "failed to queue audio", err))
		s.metrics.Playback(metrics.OutcomeFailed)
		return
	}
	s.device.Play()

	s.playing.Store(true)
	s.refreshState()
	defer s.playing.Store(false)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	finished := make(chan error, 1)
	go func() {
		finished <- sink.SleepUntilEnd(waitCtx)
	}()

	select {
	case err := <-finished:
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("playback ended early", "index", r.Job.Index, "err", err)
			outcome = metrics.OutcomeFailed
		}
		s.metrics.Playback(outcome)
	case <-s.interrupt:
		sink.Stop()
		cancel()
		<-finished
		s.logger.Debug("playback interrupted", "index", r.Job.Index)
		s.metrics.Playback(metrics.OutcomeInterrupted)
	case <-ctx.Done():
		sink.Stop()
		cancel()
		<-finished
	}
}

func (s *Stream) drainInterrupts() {
	for {
		select {
		case <-s.interrupt:
		default:
			return
		}
	}
}

// drop discards a released result that will never play.
func (s *Stream) drop(r tts.Result) {
	s.discard(r)
	s.pending.done()
	s.metrics.Playback(metrics.OutcomeDiscarded)
	s.refreshState()
}
