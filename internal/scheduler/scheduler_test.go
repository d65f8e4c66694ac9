package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestRun_ExecutesImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	s := New("test", 20*time.Millisecond, func(_ context.Context) error {
		runs.Add(1)
		return nil
	}, newNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	s.Run(ctx)

	// Один запуск сразу плюс хотя бы два тика за 70мс
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestRun_StopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	s := New("test", time.Hour, func(_ context.Context) error {
		runs.Add(1)
		return nil
	}, newNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestRun_JobErrorDoesNotStopSchedule(t *testing.T) {
	var runs atomic.Int32
	s := New("test", 15*time.Millisecond, func(_ context.Context) error {
		runs.Add(1)
		return errors.New("sweep failed")
	}, newNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s.Run(ctx)

	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}
