package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Fatalf("zero wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestRunWithTimeout(t *testing.T) {
	err := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCapture(t *testing.T) {
	if err := Capture(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected passthrough error, got %v", err)
	}

	err := Capture(func() error { panic("bad ticker") })
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestDetachSurvivesParentCancel(t *testing.T) {
	logger := zerolog.Nop()
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	Detach(parent, time.Second, &logger, "test", func(ctx context.Context) error {
		cancel()
		time.Sleep(5 * time.Millisecond)
		done <- ctx.Err()

		return nil
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("detached context canceled with parent: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("detached task did not run")
	}
}
