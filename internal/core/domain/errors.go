package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("inventory lot not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrStorage          = errors.New("storage error")
	ErrConflict         = errors.New("concurrent update conflict")
)

// StorageError wraps a persistence failure. errors.Is(err, ErrStorage) holds
// for every StorageError, alongside the wrapped cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// InvalidArgument returns an error matching ErrInvalidArgument with detail.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
