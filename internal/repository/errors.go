package repository

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorageTimeout means a query did not finish before its deadline.
	ErrStorageTimeout = errors.New("storage timeout")
	// ErrStorageUnavailable covers every other storage failure.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Classify wraps a storage error with ErrStorageTimeout or
// ErrStorageUnavailable. Nil and already classified errors pass through.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStorageTimeout), errors.Is(err, ErrStorageUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrStorageTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}
