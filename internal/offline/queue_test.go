package offline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, path
}

func TestDedupKey(t *testing.T) {
	emb := []float32{0.1, 0.2}

	assert.Equal(t, DedupKey("Jan Novák", emb, nil), DedupKey("jan-novak", emb, nil),
		"names with the same identity key must share a dedup key")
	assert.NotEqual(t, DedupKey("Jan", emb, nil), DedupKey("Jana", emb, nil))
	assert.NotEqual(t, DedupKey("Jan", emb, nil), DedupKey("Jan", []float32{0.1, 0.3}, nil))
	assert.NotEqual(t, DedupKey("Jan", nil, []byte("a")), DedupKey("Jan", nil, []byte("b")))
}

func TestEnqueueOrderAndDurability(t *testing.T) {
	ctx := context.Background()
	q, path := openTestQueue(t)

	for i, name := range []string{"Ada", "Ben", "Cara"} {
		p, created, err := q.Enqueue(ctx, PendingRegistration{Name: name, Embedding: []float32{float32(i + 1)}})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, uint64(i+1), p.ID)
		assert.False(t, p.EnqueuedAt.IsZero())
	}
	require.NoError(t, q.Close())

	q, err := Open(path)
	require.NoError(t, err)
	defer q.Close()

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "Ada", pending[0].Name)
	assert.Equal(t, "Ben", pending[1].Name)
	assert.Equal(t, "Cara", pending[2].Name)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	first, created, err := q.Enqueue(ctx, PendingRegistration{Name: "Ada", Image: []byte("photo")})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := q.Enqueue(ctx, PendingRegistration{Name: "ADA", Image: []byte("photo")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Once removed, the same registration may be queued again.
	removed, err := q.Remove(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, removed)

	_, created, err = q.Enqueue(ctx, PendingRegistration{Name: "Ada", Image: []byte("photo")})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	_, _, err := q.Enqueue(ctx, PendingRegistration{Embedding: []float32{1}})
	assert.ErrorIs(t, err, database.ErrValidationFailed)

	_, _, err = q.Enqueue(ctx, PendingRegistration{Name: "Ada"})
	assert.ErrorIs(t, err, database.ErrValidationFailed)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	p, _, err := q.Enqueue(ctx, PendingRegistration{Name: "Ada", Embedding: []float32{1}})
	require.NoError(t, err)

	removed, err := q.Remove(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Remove(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = q.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestRecordAttempt(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	p, _, err := q.Enqueue(ctx, PendingRegistration{Name: "Ada", Embedding: []float32{1}})
	require.NoError(t, err)

	require.NoError(t, q.RecordAttempt(ctx, p.ID, errors.New("store down")))
	require.NoError(t, q.RecordAttempt(ctx, p.ID, errors.New("still down")))

	got, err := q.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, "still down", got.LastError)
	assert.False(t, got.LastAttemptAt.IsZero())

	assert.ErrorIs(t, q.RecordAttempt(ctx, 999, nil), ErrNotQueued)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	bad, _, err := q.Enqueue(ctx, PendingRegistration{Name: "Bad", Embedding: []float32{1, 2}})
	require.NoError(t, err)
	good, _, err := q.Enqueue(ctx, PendingRegistration{Name: "Good", Embedding: []float32{1}})
	require.NoError(t, err)

	require.NoError(t, q.Reject(ctx, bad.ID, "wrong dimension"))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, good.ID, pending[0].ID)

	rejected, err := q.Rejected(ctx)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "wrong dimension", rejected[0].RejectedReason)

	assert.ErrorIs(t, q.Reject(ctx, bad.ID, "again"), ErrNotQueued)
}

func TestConcurrentEnqueue(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)

	const n = 32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := q.Enqueue(ctx, PendingRegistration{
				Name:      fmt.Sprintf("person %d", i),
				Embedding: []float32{float32(i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, n)
	for i := 1; i < len(pending); i++ {
		assert.Less(t, pending[i-1].ID, pending[i].ID, "ids must be strictly increasing")
	}
}

func TestCancelledContextLeavesQueueUntouched(t *testing.T) {
	q, _ := openTestQueue(t)
	p, _, err := q.Enqueue(context.Background(), PendingRegistration{Name: "Ada", Embedding: []float32{1}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = q.Len(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = q.Get(ctx, p.ID)
	assert.ErrorIs(t, err, context.Canceled)
	removed, err := q.Remove(ctx, p.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, removed)
	assert.ErrorIs(t, q.RecordAttempt(ctx, p.ID, errors.New("timeout")), context.Canceled)
	assert.ErrorIs(t, q.Reject(ctx, p.ID, "bad"), context.Canceled)

	stored, err := q.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.AttemptCount)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosedQueueUnavailable(t *testing.T) {
	ctx := context.Background()
	q, _ := openTestQueue(t)
	require.NoError(t, q.Close())

	_, _, err := q.Enqueue(ctx, PendingRegistration{Name: "Ada", Embedding: []float32{1}})
	assert.ErrorIs(t, err, database.ErrQueueUnavailable)

	_, err = q.Pending(ctx)
	assert.ErrorIs(t, err, database.ErrQueueUnavailable)
}

func TestOpenUnwritablePath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "queue.db"))
	assert.ErrorIs(t, err, database.ErrQueueUnavailable)
}
