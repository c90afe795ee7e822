package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBackend is returned when the backing store cannot be reached or a query fails.
	// It is never retried by this package.
	ErrBackend = errors.New("session backend failure")

	// ErrRecordNotFound is returned by Conn.Get when no row exists for an id.
	// Handler operations never surface it: a missing session is empty state.
	ErrRecordNotFound = errors.New("session record not found")

	// ErrReplicaIdentity is returned when a reclamation pass cannot determine
	// the backend's replica id. The pass is aborted rather than run unskewed.
	ErrReplicaIdentity = errors.New("replica identity unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// BackendError annotates a backend failure with the operation that hit it.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrBackend and the underlying cause to errors.Is/As.
func (e *BackendError) Unwrap() []error { return []error{ErrBackend, e.Err} }

func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
