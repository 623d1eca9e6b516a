package database

import (
	"context"
	"errors"
)

var (
	// ErrValidationFailed marks input that can never succeed: empty names,
	// wrong embedding dimensions, malformed boxes. Never retried.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStoreUnavailable marks a registration store that could not be
	// reached or did not answer in time. Retryable.
	ErrStoreUnavailable = errors.New("registration store unavailable")

	// ErrEmbedFailure marks an embedding or detection call that failed.
	ErrEmbedFailure = errors.New("embedding failed")

	// ErrQueueUnavailable marks broken local offline storage.
	ErrQueueUnavailable = errors.New("offline queue unavailable")

	// ErrRetryExhausted is returned when a pending registration still fails
	// after the configured number of attempts.
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// IsTransient reports whether err is worth another attempt. Errors outside
// the taxonomy count as a store that could not do its job.
func IsTransient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrQueueUnavailable),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
