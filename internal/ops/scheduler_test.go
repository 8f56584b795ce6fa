package ops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsJobsUntilCancelled(t *testing.T) {
	var ok, failing atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler([]Job{
		{Name: "verify", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			if ok.Add(1) == 3 {
				cancel()
			}
			return nil
		}},
		{Name: "clusters", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("store down")
		}},
	}, WithSchedulerLogger(quietLogger()))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, ok.Load(), int32(3))
	assert.GreaterOrEqual(t, failing.Load(), int32(1), "a failing job keeps being scheduled")
}

func TestSchedulerRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler([]Job{{Name: "verify", Interval: time.Hour, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}}, WithSchedulerLogger(quietLogger()))
	go func() { _ = s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run before its first tick")
	}
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	s := NewScheduler([]Job{
		{Name: "off", Interval: 0, Run: func(context.Context) error { return nil }},
		{Name: "nil", Interval: time.Second},
	}, WithSchedulerLogger(quietLogger()))

	assert.Empty(t, s.jobs)
	require.NoError(t, s.Run(context.Background()))
}
