package worker

import "errors"

// Errors returned by Pool
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrStopTimeout        = errors.New("worker pool stop timed out")
	ErrNilProcessor       = errors.New("worker pool needs a processor")
)
