package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestGo_RunsTask(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var ran atomic.Bool
	d.Go("task", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	d.Wait()

	if !ran.Load() {
		t.Fatalf("task did not run")
	}
}

func TestGo_RetriesUntilSuccess(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var attempts atomic.Int32
	d.Go("task", func(ctx context.Context) error {
		if attempts.Add(1) < 2 {
			return errors.New("transient")
		}
		return nil
	})

	d.Wait()

	if attempts.Load() != 2 {
		t.Fatalf("attempts = %d, want 2", attempts.Load())
	}
}

func TestGo_GivesUpAfterRetries(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var attempts atomic.Int32
	d.Go("task", func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	})

	// Отказ фоновой задачи не виден вызывающему: Wait просто возвращается.
	d.Wait()

	if attempts.Load() != maxRetries+1 {
		t.Fatalf("attempts = %d, want %d", attempts.Load(), maxRetries+1)
	}
}

func TestWait_NoTasks(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Wait()
}
