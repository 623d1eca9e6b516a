package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedder"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
)

// recordNamespace derives stable record IDs from dedup keys, so replaying
// a registration rewrites the same record.
var recordNamespace = uuid.MustParse("6f1c7e1e-8a55-4bd4-9c1e-1d2f5b7c9a30")

// RecordID returns the identity ID for a registration with dedupKey.
func RecordID(dedupKey string) string {
	if dedupKey == "" {
		return ""
	}
	return uuid.NewSHA1(recordNamespace, []byte(dedupKey)).String()
}

// Registration is the payload handed to a Committer.
type Registration struct {
	Name      string
	Embedding []float32
	Image     []byte // set only when no embedding was computed locally
	DedupKey  string
}

// Committer writes a registration to the authoritative store. It returns
// an error wrapping database.ErrStoreUnavailable when the store could not
// be reached.
type Committer interface {
	Commit(ctx context.Context, reg Registration) (database.IdentityRecord, error)
}

// Embedder turns a registration photo into an embedding.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

// Enqueuer stores registrations for later replay.
type Enqueuer interface {
	Enqueue(ctx context.Context, p offline.PendingRegistration) (offline.PendingRegistration, bool, error)
}

// LocalCommitter commits into an in-process Store.
type LocalCommitter struct {
	Store    *Store
	Embedder Embedder // used when a registration carries only an image
}

func (c *LocalCommitter) Commit(ctx context.Context, reg Registration) (database.IdentityRecord, error) {
	emb := reg.Embedding
	if len(emb) == 0 {
		if c.Embedder == nil || len(reg.Image) == 0 {
			return database.IdentityRecord{}, fmt.Errorf("%w: registration has no embedding", database.ErrValidationFailed)
		}
		var err error
		if emb, err = c.Embedder.Embed(ctx, reg.Image); err != nil {
			return database.IdentityRecord{}, err
		}
	}
	return c.Store.Put(ctx, database.IdentityRecord{
		ID:        RecordID(reg.DedupKey),
		Name:      reg.Name,
		Embedding: emb,
	})
}

// Status is the user-visible result of a registration.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusQueued    Status = "queued"
)

// Request is a registration as submitted by a user.
type Request struct {
	Name      string
	Embedding []float32
	Image     []byte
}

// Outcome reports what happened to a registration.
type Outcome struct {
	Status  Status
	Record  database.IdentityRecord      // set when committed
	Pending *offline.PendingRegistration // set when queued
}

// Message is the text shown to the user.
func (o Outcome) Message() string {
	if o.Status == StatusQueued {
		return "stored locally, will sync"
	}
	return fmt.Sprintf("registered %s", o.Record.Name)
}

// Registrar runs the registration pipeline: validate, embed, commit, and
// fall back to the offline queue when the store is unreachable.
type Registrar struct {
	committer Committer
	queue     Enqueuer
	embedder  Embedder
	listener  notify.Listener
	dim       int
	logger    *slog.Logger
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithQueue enables the offline fallback.
func WithQueue(q Enqueuer) RegistrarOption {
	return func(r *Registrar) { r.queue = q }
}

// WithEmbedder embeds photos before committing.
func WithEmbedder(e Embedder) RegistrarOption {
	return func(r *Registrar) { r.embedder = e }
}

// WithListener receives an event for every committed registration.
func WithListener(l notify.Listener) RegistrarOption {
	return func(r *Registrar) { r.listener = l }
}

// WithDim checks embedding dimensions before anything is committed or queued.
func WithDim(dim int) RegistrarOption {
	return func(r *Registrar) { r.dim = dim }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RegistrarOption {
	return func(r *Registrar) { r.logger = l }
}

// NewRegistrar creates a registration pipeline around committer.
func NewRegistrar(committer Committer, opts ...RegistrarOption) *Registrar {
	r := &Registrar{committer: committer, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates req and commits it, or queues it when the store is
// unreachable. Validation and embedding failures are returned and nothing
// is queued.
func (r *Registrar) Register(ctx context.Context, req Request) (Outcome, error) {
	name := facematch.CleanDisplayName(req.Name)
	if facematch.NormalizePersonName(name) == "" {
		return Outcome{}, fmt.Errorf("%w: name is empty", database.ErrValidationFailed)
	}

	reg := Registration{Name: name, Embedding: req.Embedding}
	switch {
	case len(req.Embedding) > 0:
		if err := database.ValidateEmbedding(req.Embedding, r.dim); err != nil {
			return Outcome{}, err
		}
	case len(req.Image) > 0 && r.embedder != nil:
		emb, err := r.embedder.Embed(ctx, req.Image)
		if err != nil {
			return Outcome{}, fmt.Errorf("embedding %q: %w", name, err)
		}
		if err := database.ValidateEmbedding(emb, r.dim); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", database.ErrEmbedFailure, err)
		}
		reg.Embedding = emb
	case len(req.Image) > 0:
		if _, err := embedder.ValidateImage(req.Image); err != nil {
			return Outcome{}, err
		}
		reg.Image = req.Image
	default:
		return Outcome{}, fmt.Errorf("%w: an embedding or an image is required", database.ErrValidationFailed)
	}
	reg.DedupKey = offline.DedupKey(reg.Name, reg.Embedding, reg.Image)

	rec, err := r.committer.Commit(ctx, reg)
	if err == nil {
		r.logger.Info("face registered", "name", rec.Name, "id", rec.ID)
		r.notify(ctx, rec, notify.SourceDirect, 0)
		return Outcome{Status: StatusCommitted, Record: rec}, nil
	}
	if !errors.Is(err, database.ErrStoreUnavailable) || r.queue == nil {
		return Outcome{}, err
	}

	pending, created, qerr := r.queue.Enqueue(ctx, offline.PendingRegistration{
		Name:      reg.Name,
		Embedding: reg.Embedding,
		Image:     reg.Image,
		DedupKey:  reg.DedupKey,
	})
	if qerr != nil {
		return Outcome{}, fmt.Errorf("registration could not be committed (%v) or stored locally: %w", err, qerr)
	}
	r.logger.Warn("registration queued for sync",
		"name", reg.Name, "queue_id", pending.ID, "duplicate", !created, "cause", err)
	return Outcome{Status: StatusQueued, Pending: &pending}, nil
}

func (r *Registrar) notify(ctx context.Context, rec database.IdentityRecord, source string, queueID uint64) {
	if r.listener == nil {
		return
	}
	r.listener.Notify(ctx, notify.Event{
		Type:         notify.EventFaceRegistered,
		ID:           rec.ID,
		Name:         rec.Name,
		RegisteredAt: rec.RegisteredAt,
		Source:       source,
		QueueID:      queueID,
	})
}
