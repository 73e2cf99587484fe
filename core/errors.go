package core

import (
	"errors"
	"fmt"
)

var (
	ErrOperatorClosed = errors.New("operator closed")
	ErrScopeTooDeep   = errors.New("scope deeper than configured level")
	ErrUnknownPort    = errors.New("unknown port")
	ErrPortOrder      = errors.New("port added out of order")
)

// ExecError classifies a computation failure. A retryable failure lets the
// current fire finish its completion bookkeeping and tells the scheduler
// that firing again later is safe. Anything else is fatal.
type ExecError struct {
	Err       error
	Retryable bool
}

func (e *ExecError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("retryable: %v", e.Err)
	}
	return e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

// Retryable marks err as recoverable
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &ExecError{Err: err, Retryable: true}
}

// Fatal marks err as non-recoverable
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ExecError{Err: err}
}

// IsRetryable reports whether err was marked recoverable. Unclassified
// errors are fatal.
func IsRetryable(err error) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}
