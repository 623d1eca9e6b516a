// Package registry is the authoritative set of registered identities and
// the pipeline that registers new ones.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// Store persists identities in a backend and keeps the match index in
// step with every committed write. Puts for the same normalized name are
// serialized; different names proceed concurrently.
type Store struct {
	backend database.Backend
	index   *database.MatchIndex
	locks   *keyLock
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore wires a backend to a match index.
func NewStore(backend database.Backend, index *database.MatchIndex, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		index:   index,
		locks:   newKeyLock(),
		logger:  logger,
		now:     time.Now,
	}
}

// Index returns the match index fed by this store.
func (s *Store) Index() *database.MatchIndex {
	return s.index
}

// Backend returns the underlying persistence.
func (s *Store) Backend() database.Backend {
	return s.backend
}

// Load replaces the index content with every identity in the backend.
func (s *Store) Load(ctx context.Context) (int, error) {
	records, err := s.backend.GetAll(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if err := s.index.Replace(records); err != nil {
		return 0, fmt.Errorf("loading %d identities into index: %w", len(records), err)
	}
	return len(records), nil
}

// Put validates and commits rec. A missing ID gets a random UUID and a zero
// RegisteredAt gets the current time. The index sees the record only after
// the backend committed it.
func (s *Store) Put(ctx context.Context, rec database.IdentityRecord) (database.IdentityRecord, error) {
	rec.Name = facematch.CleanDisplayName(rec.Name)
	rec.NameKey = facematch.NormalizePersonName(rec.Name)
	if rec.NameKey == "" {
		return database.IdentityRecord{}, fmt.Errorf("%w: name is empty", database.ErrValidationFailed)
	}
	if err := database.ValidateEmbedding(rec.Embedding, s.index.Dim()); err != nil {
		return database.IdentityRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = s.now()
	}
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	rec.Accepted = true

	unlock := s.locks.Lock(rec.NameKey)
	defer unlock()

	superseded, err := s.backend.Put(ctx, rec)
	if err != nil {
		return database.IdentityRecord{}, classify(err)
	}

	if _, err := s.index.Upsert(rec); err != nil {
		// Validated above, so this only fires on a dimension change at runtime.
		return database.IdentityRecord{}, fmt.Errorf("index upsert after commit: %w", err)
	}
	if superseded != "" {
		s.index.Remove(superseded)
		s.logger.Info("identity superseded", "name", rec.Name, "old_id", superseded, "new_id", rec.ID)
	}
	return rec, nil
}

// Delete removes an identity from the backend, then from the index.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return classify(err)
	}
	s.index.Remove(id)
	return nil
}

// List returns the backend's identities, falling back to the index when the
// backend is unreachable.
func (s *Store) List(ctx context.Context) ([]database.IdentityRecord, error) {
	records, err := s.backend.GetAll(ctx)
	if err == nil {
		return records, nil
	}
	s.logger.Warn("listing from index snapshot, store unavailable", "error", err)
	return s.index.Records(), nil
}

// Ping reports whether the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	return nil
}

// LogRecognition forwards to the backend when it keeps a recognition log.
func (s *Store) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	logger, ok := s.backend.(database.RecognitionLogger)
	if !ok {
		return nil
	}
	return logger.LogRecognition(ctx, entries)
}

// classify maps backend errors onto the error taxonomy. Anything that is
// not a validation or lookup failure means the store could not do its job.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled),
		errors.Is(err, database.ErrValidationFailed),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
}
