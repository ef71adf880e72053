package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPeriodicTrigger_InvalidConfig(t *testing.T) {
	_, err := NewPeriodicTrigger(TriggerConfig{Interval: 0}, func(context.Context) error { return nil }, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPeriodicTrigger(TriggerConfig{Interval: time.Second}, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPeriodicTrigger_RunsOnTicks(t *testing.T) {
	var runs atomic.Int32
	trig, err := NewPeriodicTrigger(TriggerConfig{Name: "test", Interval: 10 * time.Millisecond, RunOnStart: true},
		func(context.Context) error {
			runs.Add(1)
			return nil
		}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, trig.Start(context.Background()))
	assert.ErrorIs(t, trig.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, trig.IsRunning())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, trig.Stop(context.Background()))
	assert.False(t, trig.IsRunning())
	assert.ErrorIs(t, trig.Stop(context.Background()), ErrSchedulerNotRunning)

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestPeriodicTrigger_RunNowSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	trig, err := NewPeriodicTrigger(TriggerConfig{Interval: time.Hour}, func(context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- trig.RunNow(context.Background()) }()
	<-started

	assert.ErrorIs(t, trig.RunNow(context.Background()), ErrJobInProgress)
	close(release)
	require.NoError(t, <-done)

	stats := trig.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(1), stats.Overlaps)
}

func TestPeriodicTrigger_RecordsFailuresAndPanics(t *testing.T) {
	var calls atomic.Int32
	trig, err := NewPeriodicTrigger(TriggerConfig{Interval: time.Hour}, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		panic("kaboom")
	}, zap.NewNop())
	require.NoError(t, err)

	assert.EqualError(t, trig.RunNow(context.Background()), "boom")
	assert.ErrorIs(t, trig.RunNow(context.Background()), ErrJobPanicked)

	stats := trig.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(2), stats.Failures)
	assert.Equal(t, ErrJobPanicked.Error(), stats.LastError)
}

func TestPeriodicTrigger_Timeout(t *testing.T) {
	trig, err := NewPeriodicTrigger(TriggerConfig{Interval: time.Hour, Timeout: 20 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, trig.RunNow(context.Background()), context.DeadlineExceeded)
}
