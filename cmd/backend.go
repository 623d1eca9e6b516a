package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/face-registry/internal/client"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mariadb"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/database/sqlite"
	"github.com/kozaktomas/face-registry/internal/embedder"
	"github.com/kozaktomas/face-registry/internal/registry"
)

const remoteTimeout = 30 * time.Second

// errDatabaseURL marks configuration errors that retrying cannot fix.
var errDatabaseURL = errors.New("invalid database URL")

// openBackend picks the store implementation from the database URL scheme.
func openBackend(ctx context.Context, cfg *config.DatabaseConfig) (database.Backend, error) {
	url := cfg.URL
	switch {
	case url == "":
		return nil, fmt.Errorf("%w: DATABASE_URL environment variable is required", errDatabaseURL)
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		b, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case strings.HasPrefix(url, "mysql://"), strings.HasPrefix(url, "mariadb://"):
		b, err := mariadb.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		b, err := sqlite.Open(ctx, sqlite.PathFromURL(url))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unsupported database URL scheme in %q (use postgres://, mysql://, sqlite:// or file:)", errDatabaseURL, url)
	}
}

// localRegistry is the index, store and embedder of an in-process registry.
// store is nil when the backend could not be reached.
type localRegistry struct {
	cfg      *config.Config
	index    *database.MatchIndex
	backend  database.Backend
	store    *registry.Store
	embedder *embedder.Client
	storeErr error
}

// openLocal builds the match index from the snapshot and the backend. With
// requireStore unset an unreachable backend is reported through storeErr
// instead of failing, so registrations can still be queued.
func openLocal(ctx context.Context, cfg *config.Config, requireStore bool) (*localRegistry, error) {
	strategy, err := database.NewStrategy(cfg.Match.Strategy)
	if err != nil {
		return nil, err
	}
	lr := &localRegistry{
		cfg:      cfg,
		index:    database.NewMatchIndex(strategy, cfg.Embedding.Dim),
		embedder: embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.Timeout),
	}

	if path := cfg.Database.IndexSnapshotPath; path != "" {
		meta, err := lr.index.LoadSnapshot(path)
		switch {
		case err == nil:
			slog.Info("index snapshot loaded", "path", path, "records", meta.RecordCount, "saved_at", meta.SavedAt)
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("no index snapshot yet", "path", path)
		default:
			slog.Warn("ignoring index snapshot", "path", path, "error", err)
		}
	}

	backend, err := openBackend(ctx, &cfg.Database)
	if err != nil {
		if requireStore {
			return nil, fmt.Errorf("opening identity store: %w", err)
		}
		lr.storeErr = err
		return lr, nil
	}
	lr.backend = backend
	lr.store = registry.NewStore(backend, lr.index, slog.Default())

	n, err := lr.store.Load(ctx)
	if err != nil {
		slog.Warn("could not load identities, using snapshot", "error", err, "snapshot_records", lr.index.Len())
	} else {
		slog.Debug("identities loaded", "count", n)
	}
	return lr, nil
}

// committer returns the store committer, or one that reports the store as
// unavailable when the backend could not be opened.
func (lr *localRegistry) committer() registry.Committer {
	if lr.store == nil {
		return unavailableCommitter{err: lr.storeErr}
	}
	return &registry.LocalCommitter{Store: lr.store, Embedder: lr.embedder}
}

// keepServing swaps an unreachable store for one that reconnects on use, so
// the snapshot keeps answering recognitions and registrations get queued.
func (lr *localRegistry) keepServing() *reconnectingBackend {
	if lr.store != nil {
		return nil
	}
	rb := newReconnectingBackend(&lr.cfg.Database, lr.index, lr.storeErr)
	lr.backend = rb
	lr.store = registry.NewStore(rb, lr.index, slog.Default())
	return rb
}

// Close saves the index snapshot and closes the backend. A store that never
// came back leaves the snapshot as it was.
func (lr *localRegistry) Close() {
	if rb, ok := lr.backend.(*reconnectingBackend); ok && !rb.connected() {
		lr.backend.Close()
		return
	}
	if lr.store != nil {
		if err := lr.index.SaveSnapshot(lr.cfg.Database.IndexSnapshotPath); err != nil {
			fmt.Printf("Warning: failed to save index snapshot: %v\n", err)
		}
	}
	if lr.backend != nil {
		lr.backend.Close()
	}
}

type unavailableCommitter struct {
	err error
}

func (c unavailableCommitter) Commit(context.Context, registry.Registration) (database.IdentityRecord, error) {
	return database.IdentityRecord{}, fmt.Errorf("%w: %v", database.ErrStoreUnavailable, c.err)
}

// serverURL returns the --server flag or REGISTRY_SERVER_URL.
func serverURL(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Server.URL
}

func newRemote(url string) *client.Client {
	return client.New(url, remoteTimeout)
}
