package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

// DefaultCapacity is the number of jobs that may await release at once.
const DefaultCapacity = 10

var (
	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)

// Ticket is a reserved slot in the release order. The job's worker completes
// it exactly once; the first completion wins.
type Ticket struct {
	Job tts.Job

	ctx    context.Context
	cancel context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result tts.Result
}

// Context is canceled when the ticket is drained or the queue closes.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Complete records the job's outcome. Later calls are ignored and reported false.
func (t *Ticket) Complete(r tts.Result) bool {
	completed := false
	t.once.Do(func() {
		t.result = r
		completed = true
		close(t.done)
	})
	return completed
}

// Done is closed once the ticket has a result.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome. It is only valid after Done is closed.
func (t *Ticket) Result() tts.Result {
	return t.result
}

// Stats tracks queue activity
type Stats struct {
	TotalPushed   int64
	TotalReleased int64
	TotalDrained  int64
	CurrentSize   int
	PeakSize      int
	LastPush      time.Time
	LastRelease   time.Time
}

// ReleaseQueue is a bounded, order-preserving queue of in-flight jobs.
type ReleaseQueue struct {
	capacity int
	slots    []*Ticket

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	notFull *sync.Cond
	// changed is closed and replaced whenever the slot list changes shape,
	// waking Next without polling.
	changed chan struct{}

	closed bool
	stats  Stats
}

// New creates a release queue holding at most capacity jobs.
func New(capacity int) *ReleaseQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	base, cancel := context.WithCancel(context.Background())
	q := &ReleaseQueue{
		capacity: capacity,
		slots:    make([]*Ticket, 0, capacity),
		base:     base,
		cancel:   cancel,
		changed:  make(chan struct{}),
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push reserves the next slot for job. It blocks while the queue is full,
// until a slot frees, ctx ends, or the queue closes.
func (q *ReleaseQueue) Push(ctx context.Context, job tts.Job) (*Ticket, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	// Apply backpressure: wait for space
	for len(q.slots) >= q.capacity && !q.closed && ctx.Err() == nil {
		q.notFull.Wait()
	}
	if q.closed {
		return nil, ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(q.base)
	t := &Ticket{
		Job:    job,
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.slots = append(q.slots, t)

	q.stats.TotalPushed++
	q.stats.LastPush = time.Now()
	if len(q.slots) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.slots)
	}
	q.notifyLocked()
	return t, nil
}

// Next waits for the front job to complete and releases its result.
// Results behind an unfinished front job are held back. Next returns
// ErrQueueClosed once the queue is closed and empty.
func (q *ReleaseQueue) Next(ctx context.Context) (tts.Result, error) {
	for {
		q.mu.Lock()
		if q.closed && len(q.slots) == 0 {
			q.mu.Unlock()
			return tts.Result{}, ErrQueueClosed
		}
		var front *Ticket
		var done <-chan struct{}
		if len(q.slots) > 0 {
			front = q.slots[0]
			done = front.done
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return tts.Result{}, ctx.Err()
		case <-changed:
		case <-done:
			q.mu.Lock()
			// A drain may have removed the front while we were waiting.
			if len(q.slots) > 0 && q.slots[0] == front {
				q.slots[0] = nil
				q.slots = q.slots[1:]
				front.cancel()
				q.stats.TotalReleased++
				q.stats.LastRelease = time.Now()
				q.notFull.Signal()
				q.notifyLocked()
				q.mu.Unlock()
				return front.result, nil
			}
			q.mu.Unlock()
		}
	}
}

// Drain removes every queued ticket, cancels their jobs, and returns them so
// the caller can discard results as they arrive.
func (q *ReleaseQueue) Drain() []*Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.slots
	q.slots = make([]*Ticket, 0, q.capacity)
	for _, t := range drained {
		t.cancel()
	}

	q.stats.TotalDrained += int64(len(drained))
	q.notFull.Broadcast()
	q.notifyLocked()
	return drained
}

// Len returns the number of jobs awaiting release.
func (q *ReleaseQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Capacity returns the maximum number of jobs awaiting release.
func (q *ReleaseQueue) Capacity() int {
	return q.capacity
}

// Stats returns queue statistics.
func (q *ReleaseQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.CurrentSize = len(q.slots)
	return s
}

// Close cancels every job and wakes all waiters. Queued tickets remain
// releasable so Next can hand out their results.
func (q *ReleaseQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.cancel()
	q.notFull.Broadcast()
	q.notifyLocked()
	return nil
}

func (q *ReleaseQueue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
