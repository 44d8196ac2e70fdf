package scheduler

import "errors"

var (
	// ErrInvalidInterval is returned when a job is scheduled with interval <= 0.
	ErrInvalidInterval = errors.New("interval must be greater than zero")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// JobError wraps job store failures with the job key involved.
type JobError struct {
	Op  string
	Key string
	Err error
}

func (e *JobError) Error() string {
	return "scheduler " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}
