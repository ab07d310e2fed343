// Package sentinel names infrastructure facts that stores report and
// services translate. Input problems are not sentinels; they are coded
// errors from pkg/domain-errors.
package sentinel

import "errors"

var (
	// ErrNotFound: no row, record or blob under that key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a uniqueness rule rejected the write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the record exists but its status forbids the change.
	ErrInvalidState = errors.New("invalid state")
	// ErrLockTimeout: a scope or sequence lock was not granted in time, or
	// the database aborted the wait to break a deadlock.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrUnavailable: the backend could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
