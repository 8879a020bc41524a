package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a concurrent writer advanced the chain first.
	ErrConflict = errors.New("chain head moved")
	// ErrAlreadyDelivered is returned when a message was already delivered.
	ErrAlreadyDelivered = errors.New("message already delivered")
	// ErrAlreadyCompleted is returned when a bridging ritual was already completed.
	ErrAlreadyCompleted = errors.New("bridging ritual already completed")
	// ErrAlreadyConfirmed is returned when a boundary event already produced a node.
	ErrAlreadyConfirmed = errors.New("boundary already confirmed")
)

// ValidationError reports malformed input to a public call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError for op. Nil and validation errors pass
// through unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
