package repository

import (
	"errors"
	"fmt"
)

// StorageError wraps a local persistence failure. The store never retries;
// the caller decides what a failed durable write means for it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RemoteError wraps a failed call against the remote document service.
// The sync engine treats any RemoteError as "remote unavailable" and degrades
// rather than propagating it.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ErrSessionCorrupt marks unreadable persisted session state. Callers treat
// it as "no session", never as a failure.
var ErrSessionCorrupt = errors.New("persisted session is corrupt")
