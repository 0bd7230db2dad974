package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPassword is the authentication failure. It never means
	// corrupted data.
	ErrWrongPassword  = errors.New("vault: wrong password")
	ErrEmptyPassword  = errors.New("vault: password must not be empty")
	ErrNotEnabled     = errors.New("vault: not set up")
	ErrAlreadyEnabled = errors.New("vault: already set up")
	// ErrLocked is returned when a session is used after lock, or an
	// operation needs an unlocked vault.
	ErrLocked   = errors.New("vault: locked")
	ErrNotFound = errors.New("vault: bookmark not found")
)

// BackendError wraps a storage or crypto failure so it is never mistaken
// for a wrong password.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
