package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

const storeReconnectInterval = 15 * time.Second

// reconnectingBackend stands in for a store that could not be opened at
// startup. Every call retries the connection at most once per interval and
// reports ErrStoreUnavailable until it succeeds. On reconnect the match index
// is reloaded from the store before the call goes through.
type reconnectingBackend struct {
	cfg      *config.DatabaseConfig
	index    *database.MatchIndex
	open     func(context.Context, *config.DatabaseConfig) (database.Backend, error)
	interval time.Duration

	mu          sync.Mutex
	backend     database.Backend
	lastErr     error
	lastAttempt time.Time
}

func newReconnectingBackend(cfg *config.DatabaseConfig, index *database.MatchIndex, openErr error) *reconnectingBackend {
	return &reconnectingBackend{
		cfg:         cfg,
		index:       index,
		open:        openBackend,
		interval:    storeReconnectInterval,
		lastErr:     openErr,
		lastAttempt: time.Now(),
	}
}

func (r *reconnectingBackend) get(ctx context.Context) (database.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backend != nil {
		return r.backend, nil
	}
	if time.Since(r.lastAttempt) < r.interval {
		return nil, fmt.Errorf("%w: %w", database.ErrStoreUnavailable, r.lastErr)
	}
	r.lastAttempt = time.Now()

	b, err := r.open(ctx, r.cfg)
	if err != nil {
		r.lastErr = err
		return nil, fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	records, err := b.GetAll(ctx)
	if err != nil {
		b.Close()
		r.lastErr = err
		return nil, fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	if err := r.index.Replace(records); err != nil {
		b.Close()
		r.lastErr = err
		return nil, fmt.Errorf("reloading index after reconnect: %w", err)
	}
	slog.Info("identity store reconnected", "identities", len(records))
	r.backend = b
	return b, nil
}

// watch pings until the store is back or ctx is done.
func (r *reconnectingBackend) watch(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.get(ctx); err == nil {
				return
			}
		}
	}
}

func (r *reconnectingBackend) connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend != nil
}

func (r *reconnectingBackend) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	b, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.GetAll(ctx)
}

func (r *reconnectingBackend) Get(ctx context.Context, id string) (*database.IdentityRecord, error) {
	b, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, id)
}

func (r *reconnectingBackend) Count(ctx context.Context) (int, error) {
	b, err := r.get(ctx)
	if err != nil {
		return 0, err
	}
	return b.Count(ctx)
}

func (r *reconnectingBackend) Put(ctx context.Context, rec database.IdentityRecord) (string, error) {
	b, err := r.get(ctx)
	if err != nil {
		return "", err
	}
	return b.Put(ctx, rec)
}

func (r *reconnectingBackend) Delete(ctx context.Context, id string) error {
	b, err := r.get(ctx)
	if err != nil {
		return err
	}
	return b.Delete(ctx, id)
}

func (r *reconnectingBackend) Ping(ctx context.Context) error {
	b, err := r.get(ctx)
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

func (r *reconnectingBackend) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	b, err := r.get(ctx)
	if err != nil {
		return err
	}
	if logger, ok := b.(database.RecognitionLogger); ok {
		return logger.LogRecognition(ctx, entries)
	}
	return nil
}

func (r *reconnectingBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend == nil {
		return nil
	}
	return r.backend.Close()
}
