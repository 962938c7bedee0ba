package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that are empty or try to escape the
	// storage root (e.g. "../").
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds PutOptions.MaxSize.
	ErrTooLarge = errors.New("object exceeds maximum size")

	// ErrAccessDenied is returned when the provider refuses the operation.
	ErrAccessDenied = errors.New("access denied")
)

// StorageError wraps storage operation errors with the operation and key.
// Sentinel errors are reachable with errors.Is.
type StorageError struct {
	Op  string // "Put", "Get", "Exists" or "Delete"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidKey reports whether err indicates a rejected key.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// IsTooLarge reports whether err indicates an oversized object.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}
