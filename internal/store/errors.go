package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record or setting does not exist.
var ErrNotFound = errors.New("not found")

// EnvironmentError is returned by Open when the location cannot hold a
// durable database: no path, an unwritable directory, or a database that
// cannot be opened.
type EnvironmentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage unavailable at %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("storage unavailable at %q: %s", e.Path, e.Reason)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsEnvironmentError reports whether err is or wraps an *EnvironmentError.
func IsEnvironmentError(err error) bool {
	var ee *EnvironmentError
	return errors.As(err, &ee)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
