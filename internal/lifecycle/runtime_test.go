package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func component(rec *recorder, name string, startErr, stopErr error) Hooks {
	return Hooks{
		OnStart: func(context.Context) error {
			rec.add("start:" + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			rec.add("stop:" + name)
			return stopErr
		},
	}
}

func TestRuntimeStartStopOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	runtime := NewRuntime(time.Second)
	runtime.Register("one", component(rec, "one", nil, nil))
	runtime.Register("two", component(rec, "two", nil, nil))
	runtime.Register("three", component(rec, "three", nil, nil))

	if err := runtime.Start(context.Background()); err != nil {
		t.Fatalf("start runtime: %v", err)
	}
	if err := runtime.Stop(context.Background()); err != nil {
		t.Fatalf("stop runtime: %v", err)
	}

	expected := []string{
		"start:one",
		"start:two",
		"start:three",
		"stop:three",
		"stop:two",
		"stop:one",
	}
	if got := rec.list(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected order: got %v want %v", got, expected)
	}
}

func TestRuntimeStartFailureStopsStartedComponents(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	startErr := errors.New("boom")
	runtime := NewRuntime(time.Second)
	runtime.Register("one", component(rec, "one", nil, nil))
	runtime.Register("two", component(rec, "two", startErr, nil))
	runtime.Register("three", component(rec, "three", nil, nil))

	err := runtime.Start(context.Background())
	if !errors.Is(err, startErr) {
		t.Fatalf("unexpected start error: %v", err)
	}

	expected := []string{"start:one", "start:two", "stop:one"}
	if got := rec.list(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestRuntimeRunStopsAfterCancelAndJoinsErrors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	stopErr := errors.New("stuck")
	runtime := NewRuntime(time.Second)
	runtime.Register("db", component(rec, "db", nil, stopErr))
	runtime.Register("scheduler", component(rec, "scheduler", nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runtime.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(rec.list()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("components did not start: %v", rec.list())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, stopErr) {
			t.Fatalf("expected stop error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return")
	}

	expected := []string{"start:db", "start:scheduler", "stop:scheduler", "stop:db"}
	if got := rec.list(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected events: %v", got)
	}
}
