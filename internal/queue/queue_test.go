package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgnsrekt/speakstream/internal/tts"
)

func push(t *testing.T, q *ReleaseQueue, i uint64) *Ticket {
	t.Helper()
	ticket, err := q.Push(context.Background(), tts.Job{Index: i, Text: fmt.Sprintf("sentence %d", i)})
	if err != nil {
		t.Fatalf("Push %d failed: %v", i, err)
	}
	return ticket
}

func TestReleaseQueue_PreservesOrder(t *testing.T) {
	q := New(10)
	defer q.Close()

	tickets := make([]*Ticket, 5)
	for i := range tickets {
		tickets[i] = push(t, q, uint64(i))
	}

	// Complete in reverse order; release must still be 0..4.
	for i := len(tickets) - 1; i >= 0; i-- {
		tickets[i].Complete(tts.Succeeded(tickets[i].Job, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for want := uint64(0); want < 5; want++ {
		r, err := q.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if r.Job.Index != want {
			t.Errorf("Expected index %d, got %d", want, r.Job.Index)
		}
	}
}

func TestReleaseQueue_HoldsLaterResults(t *testing.T) {
	q := New(10)
	defer q.Close()

	a := push(t, q, 0)
	b := push(t, q, 1)
	b.Complete(tts.Succeeded(b.Job, nil))

	released := make(chan uint64, 2)
	go func() {
		for i := 0; i < 2; i++ {
			r, err := q.Next(context.Background())
			if err != nil {
				return
			}
			released <- r.Job.Index
		}
	}()

	select {
	case idx := <-released:
		t.Fatalf("Released %d before the front job completed", idx)
	case <-time.After(50 * time.Millisecond):
	}

	a.Complete(tts.Failed(a.Job, errors.New("boom")))
	for _, want := range []uint64{0, 1} {
		select {
		case got := <-released:
			if got != want {
				t.Errorf("Expected %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for release")
		}
	}
}

func TestReleaseQueue_Backpressure(t *testing.T) {
	q := New(2)
	defer q.Close()

	first := push(t, q, 0)
	push(t, q, 1)

	pushed := make(chan error, 1)
	go func() {
		_, err := q.Push(context.Background(), tts.Job{Index: 2})
		pushed <- err
	}()

	select {
	case <-pushed:
		t.Fatal("Push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	first.Complete(tts.Succeeded(first.Job, nil))
	if _, err := q.Next(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-pushed:
		if err != nil {
			t.Errorf("Push failed after slot freed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not resume after a slot freed")
	}
	if q.Stats().PeakSize != 2 {
		t.Errorf("Expected peak size 2, got %d", q.Stats().PeakSize)
	}
}

func TestReleaseQueue_PushHonorsContext(t *testing.T) {
	q := New(1)
	defer q.Close()
	push(t, q, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := q.Push(ctx, tts.Job{Index: 1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %v", err)
	}
}

func TestReleaseQueue_Drain(t *testing.T) {
	q := New(3)
	defer q.Close()

	a := push(t, q, 0)
	b := push(t, q, 1)
	c := push(t, q, 2)

	blocked := make(chan error, 1)
	go func() {
		_, err := q.Push(context.Background(), tts.Job{Index: 3})
		blocked <- err
	}()
	time.Sleep(20 * time.Millisecond)

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("Expected 3 drained tickets, got %d", len(drained))
	}
	for _, ticket := range []*Ticket{a, b, c} {
		if ticket.Context().Err() == nil {
			t.Errorf("Expected job %d canceled", ticket.Job.Index)
		}
	}

	// The blocked producer gets the freed capacity.
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("Expected push after drain, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push still blocked after drain")
	}

	// Late completions of drained jobs never surface.
	a.Complete(tts.Succeeded(a.Job, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if r, err := q.Next(ctx); err == nil {
		t.Errorf("Expected no release, got index %d", r.Job.Index)
	}
	if q.Len() != 1 {
		t.Errorf("Expected only the post-drain job queued, got %d", q.Len())
	}
}

func TestReleaseQueue_Close(t *testing.T) {
	q := New(1)
	ticket := push(t, q, 0)

	blocked := make(chan error, 1)
	go func() {
		_, err := q.Push(context.Background(), tts.Job{Index: 1})
		blocked <- err
	}()
	time.Sleep(20 * time.Millisecond)

	q.Close()
	if err := <-blocked; !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed for blocked push, got %v", err)
	}
	if ticket.Context().Err() == nil {
		t.Error("Expected queued job canceled on close")
	}

	ticket.Complete(tts.Failed(ticket.Job, ticket.Context().Err()))
	if _, err := q.Next(context.Background()); err != nil {
		t.Errorf("Expected queued result released after close, got %v", err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on empty closed queue, got %v", err)
	}
}

func TestTicket_CompleteOnce(t *testing.T) {
	q := New(1)
	defer q.Close()
	ticket := push(t, q, 0)

	if !ticket.Complete(tts.Failed(ticket.Job, errors.New("first"))) {
		t.Error("Expected first completion to win")
	}
	if ticket.Complete(tts.Succeeded(ticket.Job, nil)) {
		t.Error("Expected second completion ignored")
	}
	if ticket.Result().Message() != "first" {
		t.Errorf("Expected first result kept, got %q", ticket.Result().Message())
	}
}
