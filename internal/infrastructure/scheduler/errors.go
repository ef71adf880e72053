package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when stopping a trigger that was never started
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrAlreadyRunning is returned when starting a trigger twice
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrJobInProgress is returned by RunNow while a previous run is active
	ErrJobInProgress = errors.New("job already in progress")

	// ErrJobPanicked is returned when a job panics
	ErrJobPanicked = errors.New("job panicked")
)
