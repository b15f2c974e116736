package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the services
var (
	// Request errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidRequest  = errors.New("invalid request")

	// Resource errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
