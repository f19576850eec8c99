package speakstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/tts"
)

// dispatch reserves a release slot for each job, in order, and starts its
// synthesis. It blocks while the queue is full.
func (s *Stream) dispatch(ctx context.Context, jobs []tts.Job) error {
	for i, job := range jobs {
		if s.stale(job) {
			s.pending.done()
			continue
		}
		ticket, err := s.queue.Push(ctx, job)
		if err != nil {
			// The remaining jobs never reach the queue.
			s.abandon(jobs[i:])
			if errors.Is(err, queue.ErrQueueClosed) {
				return ErrClosed
			}
			return err
		}

		// An interrupt may have landed while Push waited for a free slot.
		// The slot is released at once so later sentences do not wait on it.
		if s.stale(job) {
			ticket.Complete(tts.Failed(job, tts.ErrCanceled))
			continue
		}

		s.mu.Lock()
		closed := s.closed.Load()
		if !closed {
			s.jobs.Add(1)
		}
		s.mu.Unlock()
		if closed {
			// The release side settles this ticket; only the rest are abandoned.
			ticket.Complete(tts.Failed(job, tts.ErrCanceled))
			s.abandon(jobs[i+1:])
			return ErrClosed
		}

		s.metrics.SentenceEmitted()
		s.metrics.SetQueueDepth(s.queue.Len())
		s.logger.Debug("sentence dispatched", "index", job.Index, "text", job.Text)
		go s.synthesize(ticket)
	}
	return nil
}

// abandon settles jobs that will never be synthesized.
func (s *Stream) abandon(jobs []tts.Job) {
	for range jobs {
		s.pending.done()
	}
	s.refreshState()
}

// synthesize produces the ticket's result. Every path completes the ticket.
func (s *Stream) synthesize(t *queue.Ticket) {
	defer s.jobs.Done()

	if s.stale(t.Job) {
		t.Complete(tts.Failed(t.Job, tts.ErrCanceled))
		return
	}

	start := time.Now()
	r := s.produce(t.Context(), t.Job)
	if r.Err != nil {
		if !errors.Is(r.Err, tts.ErrCanceled) {
			s.metrics.SynthesisFailed(string(tts.CodeOf(r.Err)))
			s.logger.Warn("synthesis failed", "index", t.Job.Index, "text", t.Job.Text, "err", r.Err)
		}
	} else {
		s.metrics.SynthesisDone(time.Since(start))
	}
	if !t.Complete(r) {
		s.discard(r)
	}
}

// produce turns a job into materialized audio or an error result.
func (s *Stream) produce(ctx context.Context, job tts.Job) tts.Result {
	format := s.opts.AudioFormat
	key := cache.Key(job.Text, job.Voice, job.Speed, string(format))

	if s.opts.Cache != nil {
		if data, ok := s.opts.Cache.Get(key); ok {
			h := s.newHandle(format)
			err := os.WriteFile(h.Path, data, 0o600)
			if err == nil {
				s.metrics.CacheHit()
				s.logger.Debug("cache hit", "index", job.Index)
				return tts.Succeeded(job, h)
			}
			s.logger.Debug("failed to materialize cached audio", "err", err)
			h.Remove()
		}
	}

	h, err := s.fetch(ctx, job)
	if err != nil {
		return tts.Failed(job, err)
	}

	if tts.NeedsTempo(job.Speed) {
		h, err = s.retime(ctx, h, job.Speed)
		if err != nil {
			return tts.Failed(job, err)
		}
	}

	if s.opts.Cache != nil {
		if data, err := os.ReadFile(h.Path); err == nil {
			if err := s.opts.Cache.Put(key, data); err != nil {
				s.logger.Debug("cache store failed", "err", err)
			}
		}
	}
	return tts.Succeeded(job, h)
}

// fetch calls the synthesizer and saves its stream to disk. The request and
// save phases each have their own deadline, enforced here rather than
// trusted to the synthesizer.
func (s *Stream) fetch(ctx context.Context, job tts.Job) (*tts.AudioHandle, error) {
	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	type response struct {
		body io.ReadCloser
		err  error
	}
	responses := make(chan response, 1)
	req := tts.Request{Text: job.Text, Voice: job.Voice, Format: s.opts.AudioFormat}
	go func() {
		body, err := s.opts.Synthesizer.Synthesize(callCtx, req)
		responses <- response{body, err}
	}()
	abandon := func() {
		cancelCall()
		go func() {
			if r := <-responses; r.body != nil {
				r.body.Close()
			}
		}()
	}

	var body io.ReadCloser
	requestTimer := time.NewTimer(s.opts.RequestTimeout)
	select {
	case r := <-responses:
		requestTimer.Stop()
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, tts.ErrCanceled
			}
			return nil, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "synthesis request failed", r.err)
		}
		body = r.body
	case <-requestTimer.C:
		abandon()
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisTimeout,
			fmt.Sprintf("synthesis request exceeded %s", s.opts.RequestTimeout), tts.ErrTimeout)
	case <-ctx.Done():
		requestTimer.Stop()
		abandon()
		return nil, tts.ErrCanceled
	}

	h := s.newHandle(s.opts.AudioFormat)
	f, err := os.Create(h.Path)
	if err != nil {
		body.Close()
		return nil, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "failed to create audio file", err)
	}

	saved := make(chan error, 1)
	go func() {
		n, err := io.Copy(f, body)
		if err == nil && n == 0 {
			err = tts.ErrSynthesisFailed
		}
		saved <- errors.Join(err, f.Close())
	}()
	// The copy goroutine owns f until it reports.
	giveUp := func() {
		cancelCall()
		body.Close()
		go func() {
			<-saved
			h.Remove()
		}()
	}

	saveTimer := time.NewTimer(s.opts.SaveTimeout)
	defer saveTimer.Stop()
	select {
	case err := <-saved:
		body.Close()
		if err != nil {
			h.Remove()
			if ctx.Err() != nil {
				return nil, tts.ErrCanceled
			}
			return nil, tts.NewTTSError(tts.ErrorCodeSynthesisFailed, "failed to save audio", err)
		}
		return h, nil
	case <-saveTimer.C:
		giveUp()
		return nil, tts.NewTTSError(tts.ErrorCodeSaveTimeout,
			fmt.Sprintf("saving audio exceeded %s", s.opts.SaveTimeout), tts.ErrTimeout)
	case <-ctx.Done():
		giveUp()
		return nil, tts.ErrCanceled
	}
}

// retime runs the transcoder over h and replaces it with the result.
func (s *Stream) retime(ctx context.Context, h *tts.AudioHandle, speed float64) (*tts.AudioHandle, error) {
	defer h.Remove()

	if s.opts.Transcoder == nil {
		return nil, tts.NewTTSError(tts.ErrorCodeTranscoderMissing, "no transcoder configured", tts.ErrTranscoderMissing)
	}
	out := s.newHandle(h.Format)
	if err := s.opts.Transcoder.Transcode(ctx, h.Path, out.Path, speed, h.Format); err != nil {
		out.Remove()
		if ctx.Err() != nil {
			return nil, tts.ErrCanceled
		}
		return nil, err
	}
	return out, nil
}

func (s *Stream) newHandle(format tts.Format) *tts.AudioHandle {
	name := "speakstream-" + uuid.NewString() + format.Ext()
	return &tts.AudioHandle{Path: filepath.Join(s.opts.TempDir, name), Format: format}
}
