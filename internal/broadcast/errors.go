package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start on a loop that was already started.
	ErrAlreadyRunning = errors.New("broadcast loop already running")
	// ErrStopped is returned when using a loop after Stop.
	ErrStopped = errors.New("broadcast loop stopped")
	// ErrQueueFull means an observer fell so far behind that its queue overflowed.
	ErrQueueFull = errors.New("observer queue full")
	// ErrTooManyMisses means an observer timed out MaxMissedSends times in a row.
	ErrTooManyMisses = errors.New("observer missed too many sends")
)

// DeliveryError reports why an observer was dropped.
type DeliveryError struct {
	Observer string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to observer %s: %v", e.Observer, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// EngineFault is a failed or panicking engine tick. The loop logs it and
// carries on with the next interval.
type EngineFault struct {
	Tick  uint64
	Err   error
	Stack []byte
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("engine fault on tick %d: %v", e.Tick, e.Err)
}

func (e *EngineFault) Unwrap() error { return e.Err }
