package errors

import "errors"

var (
	// ErrTimeout marks failures caused by an exhausted wait budget.
	// Concrete errors such as lock.TimeoutError match it via errors.Is.
	ErrTimeout = errors.New("timeout")
)
