package entity

import (
	"errors"
	"fmt"
)

// Domain errors for the ledger aggregate.
var (
	ErrUnknownUser      = errors.New("unknown user")
	ErrInvalidUserID    = errors.New("invalid user ID")
	ErrInvalidExercise  = errors.New("invalid exercise")
	ErrUnknownExercise  = errors.New("unknown exercise")
	ErrStoreUnavailable = errors.New("ledger store unavailable")
	ErrLedgerConflict   = errors.New("ledger modified concurrently")
	ErrInvalidBackup    = errors.New("invalid backup record")
	ErrInvalidQuery     = errors.New("invalid list query")
)

// StoreError wraps a persistence failure. It matches ErrStoreUnavailable and
// unwraps to the driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// NewStoreError returns nil for a nil err.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
