package audio

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestMockSink_PlaysInOrder(t *testing.T) {
	s := NewMockSink(10 * time.Millisecond)
	s.Append([]byte("a"))
	s.Append([]byte("b"))

	if s.IsEmpty() {
		t.Fatal("Expected sink busy after append")
	}
	if err := s.SleepUntilEnd(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{"play:a", "done:a", "play:b", "done:b"}
	if got := s.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if !s.IsEmpty() {
		t.Error("Expected empty sink")
	}
}

func TestMockSink_StopInterruptsSleep(t *testing.T) {
	s := NewMockSink(time.Hour)
	s.Append([]byte("long"))

	done := make(chan error, 1)
	go func() { done <- s.SleepUntilEnd(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil after stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SleepUntilEnd did not return after Stop")
	}

	want := []string{"play:long", "stop:long"}
	if got := s.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if s.StopCount() != 1 {
		t.Errorf("Expected 1 stop, got %d", s.StopCount())
	}
}

func TestMockSink_ContextEndsSleep(t *testing.T) {
	s := NewMockSink(time.Hour)
	s.Append([]byte("long"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.SleepUntilEnd(ctx); err == nil {
		t.Error("Expected context error")
	}
}
