package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubLocker struct {
	held     bool
	released int
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error { l.released++; return nil }, true, nil
}

func TestSchedulerRunOnce(t *testing.T) {
	var runs int32
	job := Job{Name: "j", Interval: time.Minute, Run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	}}

	free := &stubLocker{}
	s := NewScheduler(free, time.Minute, nil)
	if !s.RunOnce(context.Background(), job) {
		t.Fatal("job should run when the lock is free")
	}
	if free.released != 1 {
		t.Fatalf("released = %d, want 1", free.released)
	}

	held := NewScheduler(&stubLocker{held: true}, time.Minute, nil)
	if held.RunOnce(context.Background(), job) {
		t.Fatal("job must be skipped while the lock is held")
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestSchedulerStartStopsOnCancel(t *testing.T) {
	var runs int32
	s := NewScheduler(nil, 0, nil)
	s.Add(Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})
	s.Add(Job{Name: "disabled", Interval: 0, Run: func(context.Context) error { return nil }})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if atomic.LoadInt32(&runs) < 2 {
		t.Fatalf("runs = %d, want at least 2", runs)
	}
	if len(s.jobs) != 1 {
		t.Fatalf("jobs = %d, want the disabled job dropped", len(s.jobs))
	}
}
