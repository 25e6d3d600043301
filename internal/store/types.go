package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no subscription matches the given key.
	ErrNotFound = errors.New("subscription not found")
	// ErrDeviceLimitReached is returned when a user already has the maximum number of devices.
	ErrDeviceLimitReached = errors.New("device limit reached")
)

// ValidationError reports a request that cannot be persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
