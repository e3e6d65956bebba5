package lock

import (
	"errors"
	"fmt"
	"time"

	tlerrors "github.com/mirkobrombin/go-tasklock/v1/errors"
)

var (
	// ErrInvalidArgument is returned when a nil task or nil lock is passed in.
	ErrInvalidArgument = errors.New("tasklock: invalid argument")
	// ErrInvalidRange is returned for a negative timeout or an empty lock set.
	ErrInvalidRange = errors.New("tasklock: value out of range")
	// ErrInvalidName is returned when a lock is constructed with an empty name.
	ErrInvalidName = errors.New("tasklock: lock name must not be empty")
	// ErrDuplicateName is returned when a composite acquisition is given two
	// locks with the same name. Duplicate names would defeat the global
	// acquisition order.
	ErrDuplicateName = errors.New("tasklock: duplicate lock name")
)

// TimeoutError reports that a waiter gave up before the lock was granted.
// It matches tlerrors.ErrTimeout via errors.Is.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tasklock: lock %q not acquired within %v", e.Name, e.Timeout)
}

// Is reports whether target is the shared timeout sentinel.
func (e *TimeoutError) Is(target error) bool {
	return target == tlerrors.ErrTimeout
}
