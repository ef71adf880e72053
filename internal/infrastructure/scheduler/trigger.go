package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc is the work a trigger runs on every tick
type JobFunc func(ctx context.Context) error

// TriggerConfig holds configuration for a periodic trigger
type TriggerConfig struct {
	// Name identifies the job in logs
	Name string

	// Interval between runs
	Interval time.Duration

	// RunOnStart runs the job once immediately after Start
	RunOnStart bool

	// Timeout bounds a single run; zero means the run may last until Stop
	Timeout time.Duration
}

// TriggerStats is a snapshot of a trigger's history
type TriggerStats struct {
	Runs        int64
	Failures    int64
	Overlaps    int64
	LastRunAt   time.Time
	LastError   string
	LastElapsed time.Duration
}

// PeriodicTrigger runs a job on a fixed interval in its own goroutine.
// A tick that arrives while the previous run is still going is skipped.
type PeriodicTrigger struct {
	config TriggerConfig
	job    JobFunc
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	busy      bool
	stats     TriggerStats
}

// NewPeriodicTrigger creates a trigger; Start must be called to run it
func NewPeriodicTrigger(config TriggerConfig, job JobFunc, logger *zap.Logger) (*PeriodicTrigger, error) {
	if config.Interval <= 0 || job == nil {
		return nil, ErrInvalidConfig
	}
	if config.Name == "" {
		config.Name = "job"
	}
	return &PeriodicTrigger{
		config: config,
		job:    job,
		logger: logger.With(zap.String("job", config.Name)),
	}, nil
}

// Start starts the trigger loop
func (t *PeriodicTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return ErrAlreadyRunning
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Periodic trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (t *PeriodicTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Periodic trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether Start has been called without Stop
func (t *PeriodicTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

// Stats returns a copy of the run history
func (t *PeriodicTrigger) Stats() TriggerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *PeriodicTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick runs the job on the loop goroutine
func (t *PeriodicTrigger) tick(ctx context.Context) {
	if err := t.RunNow(ctx); err != nil && !errors.Is(err, ErrJobInProgress) {
		t.logger.Error("Periodic job failed", zap.Error(err))
	}
}

// RunNow runs the job immediately unless a run is already in progress
func (t *PeriodicTrigger) RunNow(ctx context.Context) error {
	t.mu.Lock()
	if t.busy {
		t.stats.Overlaps++
		t.mu.Unlock()
		t.logger.Debug("Skipping run, previous run still in progress")
		return ErrJobInProgress
	}
	t.busy = true
	t.mu.Unlock()

	runCtx := ctx
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := t.runSafely(runCtx)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.busy = false
	t.stats.Runs++
	t.stats.LastRunAt = start
	t.stats.LastElapsed = elapsed
	t.stats.LastError = ""
	if err != nil {
		t.stats.Failures++
		t.stats.LastError = err.Error()
	}
	t.mu.Unlock()
	return err
}

func (t *PeriodicTrigger) runSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Periodic job panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = ErrJobPanicked
		}
	}()
	return t.job(ctx)
}
