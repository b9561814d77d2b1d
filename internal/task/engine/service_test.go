package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paul-wild/FAU-Clist-Bot/internal/eventbus"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 1}, nil)

	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "reconcile", Run: func(context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{}, nil)

	tests := []struct {
		name string
		task Task
	}{
		{"nil run", Task{Name: "x"}},
		{"blank name", Task{Name: "  ", Run: func(context.Context) error { return nil }}},
	}
	for _, tt := range tests {
		if err := s.Enqueue(tt.task); !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("%s: err = %v, want ErrInvalidTask", tt.name, err)
		}
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestOverlapSkipIfRunning(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()
	s := startEngine(t, Config{Workers: 2}, bus)

	release := make(chan struct{})
	started := make(chan struct{})
	long := Task{Name: "reconcile", Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(long); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-started

	second := long
	second.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(second); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue err = %v, want ErrOverlapSkip", err)
	}
	close(release)

	deadline := time.After(2 * time.Second)
	var skipped, finished bool
	for !skipped || !finished {
		select {
		case ev := <-events:
			switch ev.Type {
			case eventbus.TaskSkipped:
				skipped = true
			case eventbus.TaskFinished:
				finished = true
			}
		case <-deadline:
			t.Fatalf("skipped=%v finished=%v", skipped, finished)
		}
	}

	// The run state is released once the first run returns.
	until := time.Now().Add(2 * time.Second)
	ok := make(chan struct{})
	third := long
	third.Run = func(context.Context) error { close(ok); return nil }
	for {
		err := s.Enqueue(third)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrOverlapSkip) || time.Now().After(until) {
			t.Fatalf("third enqueue: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatalf("third run did not happen")
	}
}

func TestPanicAndTimeoutAreRecorded(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 1}, nil)

	if err := s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad") }}); err != nil {
		t.Fatalf("enqueue boom: %v", err)
	}
	if err := s.Enqueue(Task{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}); err != nil {
		t.Fatalf("enqueue slow: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h := s.Snapshot().History
		if len(h) == 2 {
			if h[0].Name != "boom" || h[0].Error == "" {
				t.Fatalf("boom history = %+v", h[0])
			}
			if h[1].Name != "slow" || h[1].Error != context.DeadlineExceeded.Error() {
				t.Fatalf("slow history = %+v", h[1])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("history not recorded: %+v", s.Snapshot().History)
}

func TestStopRejectsNewTasks(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	if snap := s.Snapshot(); snap.Running {
		t.Fatalf("engine still running after Stop")
	}
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
