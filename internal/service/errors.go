package service

import "fmt"

// ValidationError is the one error class that reaches the UI as a
// user-actionable failure on write paths. It is raised before any store is
// touched.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError marks a lookup miss surfaced to the caller.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
