// Package reconcile replays the offline queue into the registration store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// ErrEntryFailed stops a run on an entry whose error retrying cannot fix,
// such as a missing resource on a remote server.
var ErrEntryFailed = errors.New("queued registration failed")

// Queue is the part of the offline queue the reconciler drives.
type Queue interface {
	Pending(ctx context.Context) ([]offline.PendingRegistration, error)
	Remove(ctx context.Context, id uint64) (bool, error)
	RecordAttempt(ctx context.Context, id uint64, attemptErr error) error
	Reject(ctx context.Context, id uint64, reason string) error
}

// Report summarises one reconciliation run.
type Report struct {
	Committed []database.IdentityRecord
	Rejected  []offline.PendingRegistration
	// Remaining counts entries still queued when the run ended.
	Remaining int
	// Failed is the entry that exhausted its retries and stopped the run.
	Failed *offline.PendingRegistration
}

// Progress is called after each entry is handled.
type Progress func(done, total int, entry offline.PendingRegistration)

// Reconciler drains a Queue into a Committer, oldest entry first. Runs are
// serialized.
type Reconciler struct {
	queue     Queue
	committer registry.Committer
	listener  notify.Listener
	cfg       config.SyncConfig
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithListener is told about every entry committed during a run.
func WithListener(l notify.Listener) Option {
	return func(r *Reconciler) { r.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler. Zero values in cfg fall back to three attempts,
// a fixed 2s delay and a 10s attempt timeout.
func New(queue Queue, committer registry.Committer, cfg config.SyncConfig, opts ...Option) *Reconciler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	r := &Reconciler{
		queue:     queue,
		committer: committer,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the queue. See RunWithProgress.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	return r.RunWithProgress(ctx, nil)
}

// RunWithProgress commits queued entries in enqueue order. A committed
// entry is removed and announced. An entry that fails validation is moved
// to the rejected list and the run continues. An entry that still fails
// after MaxAttempts stops the run with ErrRetryExhausted, leaving it and
// everything behind it queued in order. Cancelling ctx stops the run
// between entries; an attempt already in flight is allowed to finish.
func (r *Reconciler) RunWithProgress(ctx context.Context, progress Progress) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	entries, err := r.queue.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("reading offline queue: %w", err)
	}
	report.Remaining = len(entries)
	if len(entries) == 0 {
		return report, nil
	}
	r.logger.Info("reconciling offline queue", "pending", len(entries))

	// Queue bookkeeping must not be cut short by cancellation once an
	// entry has been committed.
	bg := context.WithoutCancel(ctx)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rec, attempts, err := r.commit(ctx, entry)
		switch {
		case err == nil:
			removed, rerr := r.queue.Remove(bg, entry.ID)
			if rerr != nil {
				return report, fmt.Errorf("removing committed entry %d: %w", entry.ID, rerr)
			}
			report.Committed = append(report.Committed, rec)
			report.Remaining--
			r.logger.Info("queued registration committed", "queue_id", entry.ID, "name", rec.Name, "id", rec.ID, "attempts", attempts)
			if removed && r.listener != nil {
				r.listener.Notify(bg, notify.Event{
					Type:         notify.EventFaceRegistered,
					ID:           rec.ID,
					Name:         rec.Name,
					RegisteredAt: rec.RegisteredAt,
					Source:       notify.SourceSync,
					QueueID:      entry.ID,
				})
			}

		case errors.Is(err, database.ErrValidationFailed):
			if rerr := r.queue.Reject(bg, entry.ID, err.Error()); rerr != nil {
				return report, fmt.Errorf("rejecting entry %d: %w", entry.ID, rerr)
			}
			entry.RejectedReason = err.Error()
			report.Rejected = append(report.Rejected, entry)
			report.Remaining--
			r.logger.Warn("queued registration rejected", "queue_id", entry.ID, "name", entry.Name, "error", err)

		case ctx.Err() != nil:
			return report, ctx.Err()

		default:
			failed := entry
			report.Failed = &failed
			r.logger.Error("reconciliation stopped", "queue_id", entry.ID, "name", entry.Name, "attempts", attempts, "error", err)
			if !database.IsTransient(err) {
				return report, fmt.Errorf("%w: entry %d (%s): %w", ErrEntryFailed, entry.ID, entry.Name, err)
			}
			return report, fmt.Errorf("%w: entry %d (%s) failed %d attempts: %w",
				database.ErrRetryExhausted, entry.ID, entry.Name, attempts, err)
		}

		if progress != nil {
			progress(i+1, len(entries), entry)
		}
	}
	return report, nil
}

// commit tries one entry up to MaxAttempts times. Each attempt runs under
// its own timeout and is detached from ctx, so cancellation only takes
// effect while waiting between attempts.
func (r *Reconciler) commit(ctx context.Context, entry offline.PendingRegistration) (database.IdentityRecord, int, error) {
	reg := registry.Registration{
		Name:      entry.Name,
		Embedding: entry.Embedding,
		Image:     entry.Image,
		DedupKey:  entry.DedupKey,
	}

	var (
		rec      database.IdentityRecord
		attempts int
	)
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.AttemptTimeout)
		defer cancel()

		var err error
		rec, err = r.committer.Commit(actx, reg)
		if err == nil {
			return nil
		}
		if rerr := r.queue.RecordAttempt(context.WithoutCancel(ctx), entry.ID, err); rerr != nil {
			r.logger.Warn("recording sync attempt", "queue_id", entry.ID, "error", rerr)
		}
		if !database.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(op, r.policy(ctx), func(err error, wait time.Duration) {
		r.logger.Warn("sync attempt failed", "queue_id", entry.ID, "attempt", attempts, "retry_in", wait, "error", err)
	})
	return rec, attempts, err
}

func (r *Reconciler) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryDelay
	b.Multiplier = r.cfg.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = r.cfg.RetryDelay * time.Duration(1<<min(r.cfg.MaxAttempts, 16))
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)
}
