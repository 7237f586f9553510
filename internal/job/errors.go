package job

import (
	"errors"
	"fmt"
)

var (
	// ErrNotScheduled is returned synchronously when a key has no registered job.
	ErrNotScheduled = errors.New("job not scheduled")
	// ErrAlreadyScheduled is returned by RunOnce when the key is already registered.
	ErrAlreadyScheduled = errors.New("job already scheduled")
	// ErrInvalidJob is returned for nil jobs or jobs with an incomplete key.
	ErrInvalidJob = errors.New("invalid job")
	// ErrWaitTimeout is returned by Future.WaitTimeout.
	ErrWaitTimeout = errors.New("timed out waiting for job")
)

// DefaultFailureMessage is recorded when a failure carries no message.
const DefaultFailureMessage = "job failed"

func NotScheduled(key Key) error {
	return fmt.Errorf("%w: %s", ErrNotScheduled, key)
}

// TaskError is the failure of one run, surfaced through a forced run's future.
type TaskError struct {
	Key Key
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("job %s: %s", e.Key, FailureMessage(e.Err))
}

func (e *TaskError) Unwrap() error { return e.Err }

// FailureMessage is the message recorded in Status.LastError for err.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultFailureMessage
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
