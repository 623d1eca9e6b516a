package database

import (
	"context"
)

// IdentityReader provides read-only access to registered identities.
type IdentityReader interface {
	// GetAll returns every identity ordered by registration time, then ID.
	GetAll(ctx context.Context) ([]IdentityRecord, error)
	// Get returns one identity or ErrNotFound.
	Get(ctx context.Context, id string) (*IdentityRecord, error)
	// Count returns the number of registered identities.
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to registered identities.
type IdentityWriter interface {
	IdentityReader

	// Put stores rec, atomically replacing any record with the same NameKey.
	// It returns the ID of the replaced record, or "" when nothing was replaced.
	Put(ctx context.Context, rec IdentityRecord) (superseded string, err error)
	// Delete removes an identity. Deleting a missing ID returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// Backend is a persistent identity store with an explicit lifecycle.
type Backend interface {
	IdentityWriter

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// RecognitionLogger records recognition events. Optional for backends.
type RecognitionLogger interface {
	LogRecognition(ctx context.Context, entries []RecognitionEntry) error
}
