package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewService_RejectsBadSchedule(t *testing.T) {
	if _, err := NewService("prune", "@sometimes", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected an error for an unknown schedule")
	}
}

func TestService_RunOnce(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	s, err := NewService("prune", "@hourly", func(context.Context) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Errorf("first run: %v", err)
	}
	if err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("second run: expected boom, got %v", err)
	}
}

func TestService_StartRunsOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s, err := NewService("tick", "@every 10ms", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestService_StartStopsWithContext(t *testing.T) {
	s, err := NewService("daily", "@daily", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
