// Package offline keeps registrations that could not reach the registry in
// a durable local queue until they can be replayed.
package offline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"go.etcd.io/bbolt"
)

var (
	pendingBucket  = []byte("pending")
	dedupBucket    = []byte("dedup")
	rejectedBucket = []byte("rejected")
)

// ErrNotQueued is returned for queue IDs that hold no entry.
var ErrNotQueued = errors.New("entry not queued")

// PendingRegistration is a registration waiting for the registry.
// Exactly one of Embedding and Image is normally set.
type PendingRegistration struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Image          []byte    `json:"image,omitempty"`
	DedupKey       string    `json:"dedup_key"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
	LastAttemptAt  time.Time `json:"last_attempt_at,omitzero"`
	RejectedReason string    `json:"rejected_reason,omitempty"`
}

// DedupKey identifies a registration by normalized name and payload, so
// the same photo submitted twice is queued once.
func DedupKey(name string, embedding []float32, image []byte) string {
	h := sha256.New()
	h.Write([]byte(facematch.NormalizePersonName(name)))
	h.Write([]byte{0})
	if len(embedding) > 0 {
		h.Write([]byte("embedding:"))
		h.Write(database.EncodeEmbedding(embedding))
	} else {
		h.Write([]byte("image:"))
		h.Write(image)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Queue is a FIFO of pending registrations stored in a bbolt file. Every
// mutation is a single bbolt transaction, so entries are never partially
// written or removed.
type Queue struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the queue file at path.
func Open(path string) (*Queue, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", database.ErrQueueUnavailable, path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{pendingBucket, dedupBucket, rejectedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating buckets: %w", database.ErrQueueUnavailable, err)
	}
	return &Queue{db: db, now: time.Now}, nil
}

// Close releases the queue file.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Path returns the queue file location.
func (q *Queue) Path() string {
	return q.db.Path()
}

// Enqueue appends p and returns the stored entry. When an entry with the
// same dedup key is already queued, that entry is returned and created is
// false.
func (q *Queue) Enqueue(ctx context.Context, p PendingRegistration) (stored PendingRegistration, created bool, err error) {
	if err := ctx.Err(); err != nil {
		return PendingRegistration{}, false, err
	}
	if p.Name == "" {
		return PendingRegistration{}, false, fmt.Errorf("%w: pending registration has no name", database.ErrValidationFailed)
	}
	if len(p.Embedding) == 0 && len(p.Image) == 0 {
		return PendingRegistration{}, false, fmt.Errorf("%w: pending registration has no embedding or image", database.ErrValidationFailed)
	}
	if p.DedupKey == "" {
		p.DedupKey = DedupKey(p.Name, p.Embedding, p.Image)
	}

	err = q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(pendingBucket)
		dedup := tx.Bucket(dedupBucket)

		if existing := dedup.Get([]byte(p.DedupKey)); existing != nil {
			return decode(pending.Get(existing), &stored)
		}

		seq, err := pending.NextSequence()
		if err != nil {
			return err
		}
		p.ID = seq
		p.EnqueuedAt = q.now().UTC()
		p.AttemptCount = 0
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := pending.Put(itob(seq), data); err != nil {
			return err
		}
		if err := dedup.Put([]byte(p.DedupKey), itob(seq)); err != nil {
			return err
		}
		stored, created = p, true
		return nil
	})
	if err != nil {
		return PendingRegistration{}, false, fmt.Errorf("%w: enqueue: %w", database.ErrQueueUnavailable, err)
	}
	return stored, created, nil
}

// Pending returns every queued entry, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]PendingRegistration, error) {
	return q.list(ctx, pendingBucket)
}

// Rejected returns entries that failed validation during replay.
func (q *Queue) Rejected(ctx context.Context) ([]PendingRegistration, error) {
	return q.list(ctx, rejectedBucket)
}

func (q *Queue) list(ctx context.Context, bucket []byte) ([]PendingRegistration, error) {
	var out []PendingRegistration
	err := q.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p PendingRegistration
			if err := decode(v, &p); err != nil {
				return fmt.Errorf("entry %d: %w", btoi(k), err)
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: listing: %w", database.ErrQueueUnavailable, err)
	}
	return out, nil
}

// Get returns one queued entry.
func (q *Queue) Get(ctx context.Context, id uint64) (PendingRegistration, error) {
	var p PendingRegistration
	if err := ctx.Err(); err != nil {
		return p, err
	}
	err := q.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(pendingBucket).Get(itob(id))
		if v == nil {
			return ErrNotQueued
		}
		return decode(v, &p)
	})
	if errors.Is(err, ErrNotQueued) {
		return p, fmt.Errorf("queue entry %d: %w", id, ErrNotQueued)
	}
	if err != nil {
		return p, fmt.Errorf("%w: get: %w", database.ErrQueueUnavailable, err)
	}
	return p, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := q.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(pendingBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: len: %w", database.ErrQueueUnavailable, err)
	}
	return n, nil
}

// Remove deletes an entry and its dedup key together. It reports false,
// without error, when the entry was already gone. Like every write, it is
// skipped once ctx is done.
func (q *Queue) Remove(ctx context.Context, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var removed bool
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(pendingBucket)
		v := pending.Get(itob(id))
		if v == nil {
			return nil
		}
		var p PendingRegistration
		if err := decode(v, &p); err != nil {
			return err
		}
		if err := tx.Bucket(dedupBucket).Delete([]byte(p.DedupKey)); err != nil {
			return err
		}
		if err := pending.Delete(itob(id)); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: remove: %w", database.ErrQueueUnavailable, err)
	}
	return removed, nil
}

// RecordAttempt bumps the attempt counter of an entry and stores the
// failure, if any.
func (q *Queue) RecordAttempt(ctx context.Context, id uint64, attemptErr error) error {
	return q.update(ctx, id, func(p *PendingRegistration) {
		p.AttemptCount++
		p.LastAttemptAt = q.now().UTC()
		p.LastError = ""
		if attemptErr != nil {
			p.LastError = attemptErr.Error()
		}
	})
}

func (q *Queue) update(ctx context.Context, id uint64, fn func(*PendingRegistration)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(pendingBucket)
		v := pending.Get(itob(id))
		if v == nil {
			return ErrNotQueued
		}
		var p PendingRegistration
		if err := decode(v, &p); err != nil {
			return err
		}
		fn(&p)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return pending.Put(itob(id), data)
	})
	if errors.Is(err, ErrNotQueued) {
		return fmt.Errorf("queue entry %d: %w", id, ErrNotQueued)
	}
	if err != nil {
		return fmt.Errorf("%w: update: %w", database.ErrQueueUnavailable, err)
	}
	return nil
}

// Reject moves an entry that can never be committed out of the pending
// queue so it stops blocking later entries. The entry stays inspectable
// through Rejected.
func (q *Queue) Reject(ctx context.Context, id uint64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(pendingBucket)
		v := pending.Get(itob(id))
		if v == nil {
			return ErrNotQueued
		}
		var p PendingRegistration
		if err := decode(v, &p); err != nil {
			return err
		}
		p.RejectedReason = reason
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := tx.Bucket(rejectedBucket).Put(itob(id), data); err != nil {
			return err
		}
		if err := tx.Bucket(dedupBucket).Delete([]byte(p.DedupKey)); err != nil {
			return err
		}
		return pending.Delete(itob(id))
	})
	if errors.Is(err, ErrNotQueued) {
		return fmt.Errorf("queue entry %d: %w", id, ErrNotQueued)
	}
	if err != nil {
		return fmt.Errorf("%w: reject: %w", database.ErrQueueUnavailable, err)
	}
	return nil
}

func decode(data []byte, p *PendingRegistration) error {
	if data == nil {
		return errors.New("dangling queue reference")
	}
	return json.Unmarshal(data, p)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
