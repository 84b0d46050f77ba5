package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning rejects submissions before Start or after Stop.
	ErrSchedulerNotRunning = errors.New("scheduler not running")

	// ErrJobQueueFull rejects submissions while the queue is at capacity.
	// The trigger drops the pass and catches up on the next tick.
	ErrJobQueueFull = errors.New("job queue full")

	// ErrInvalidStage rejects jobs naming a stage the executor cannot run.
	ErrInvalidStage = errors.New("invalid pipeline stage")

	// ErrInvalidConfig is the base error every Validate failure wraps.
	ErrInvalidConfig = errors.New("scheduler config invalid")
)
