package queue

import (
	"errors"
	"fmt"
)

var (
	// Usage errors.
	ErrDestroyed          = errors.New("queue: queue is destroyed")
	ErrUnknownEvent       = errors.New("queue: unknown event")
	ErrNilFunc            = errors.New("queue: nil task function")
	ErrInvalidConcurrency = errors.New("queue: concurrency must be positive")

	// Membership errors.
	ErrTaskNotFound = errors.New("queue: task not found in queue")
	ErrForeignTask  = errors.New("queue: task does not belong to this queue")

	// Start errors.
	ErrAlreadyStarted     = errors.New("queue: task already started")
	ErrAlreadyCancelled   = errors.New("queue: task was cancelled")
	ErrTaskQueueDestroyed = errors.New("queue: task belongs to destroyed queue")
	ErrNoFreeSlot         = errors.New("queue: no free concurrency slot")

	// Settlement errors.
	ErrCancelled = errors.New("queue: task cancelled")
	ErrRemoved   = errors.New("queue: task removed before start")
)

// errSettled releases the context of a task that has already settled.
var errSettled = errors.New("queue: task settled")

// PanicError is the failure recorded for a task whose body, or the Future
// it returned, panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("queue: task panicked: %v", e.Value) }

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
