package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 3

func newTestStore(t *testing.T) (*Store, *mock.MockBackend) {
	t.Helper()
	backend := mock.NewMockBackend()
	idx := database.NewMatchIndex(database.NewLinearStrategy(), testDim)
	return NewStore(backend, idx, nil), backend
}

func TestStorePutCommitsAndIndexes(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Put(ctx, database.IdentityRecord{Name: "  Alice   Smith ", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", rec.Name)
	assert.Equal(t, "alice smith", rec.NameKey)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.RegisteredAt.IsZero())
	assert.True(t, rec.Accepted)

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	res, err := store.Index().Query([]float32{1, 0, 0}, database.DefaultMatchThreshold)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, rec.ID, res.Identity.ID)
}

func TestStorePutValidation(t *testing.T) {
	tests := []struct {
		name string
		rec  database.IdentityRecord
	}{
		{"empty name", database.IdentityRecord{Name: "   ", Embedding: []float32{1, 0, 0}}},
		{"wrong dimension", database.IdentityRecord{Name: "Bob", Embedding: []float32{1, 0}}},
		{"missing embedding", database.IdentityRecord{Name: "Bob"}},
		{"zero vector", database.IdentityRecord{Name: "Bob", Embedding: []float32{0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, backend := newTestStore(t)
			_, err := store.Put(context.Background(), tt.rec)
			require.ErrorIs(t, err, database.ErrValidationFailed)
			assert.False(t, errors.Is(err, database.ErrStoreUnavailable))
			assert.Zero(t, backend.Puts(), "invalid records must not reach the backend")
		})
	}
}

func TestStorePutBackendDown(t *testing.T) {
	store, backend := newTestStore(t)
	backend.PutError = errors.New("connection refused")

	_, err := store.Put(context.Background(), database.IdentityRecord{Name: "Carol", Embedding: []float32{0, 1, 0}})
	require.ErrorIs(t, err, database.ErrStoreUnavailable)
	assert.Zero(t, store.Index().Len(), "index must not see uncommitted records")
}

func TestStorePutSupersedes(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	first, err := store.Put(ctx, database.IdentityRecord{Name: "Dave", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	second, err := store.Put(ctx, database.IdentityRecord{Name: "dave", Embedding: []float32{0, 1, 0}})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	all, err := backend.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all[0].ID)

	assert.Equal(t, 1, store.Index().Len())
	res, err := store.Index().Query([]float32{1, 0, 0}, database.DefaultMatchThreshold)
	require.NoError(t, err)
	assert.False(t, res.Matched(), "old embedding must no longer match")
}

func TestStoreConcurrentDistinctNames(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Put(ctx, database.IdentityRecord{
				Name:      fmt.Sprintf("person %d", i),
				Embedding: []float32{1, float32(i), 0},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := backend.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, count)
	assert.Equal(t, 20, store.Index().Len())
	assert.Zero(t, store.locks.size())
}

func TestStoreConcurrentSameName(t *testing.T) {
	store, backend := newTestStore(t)
	backend.PutDelay = 5 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Put(ctx, database.IdentityRecord{
				Name:      "Eve",
				Embedding: []float32{1, float32(i), 1},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := backend.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, store.Index().Len())

	indexed, ok := store.Index().Get(all[0].ID)
	require.True(t, ok, "index and backend must agree on the surviving record")
	assert.Equal(t, all[0].Embedding, indexed.Embedding)
}

func TestStoreLoadAndList(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	backend.AddIdentity(database.IdentityRecord{
		ID: "a", Name: "Alice", NameKey: "alice", Embedding: []float32{1, 0, 0},
		RegisteredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Accepted: true,
	})

	n, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	backend.GetAllError = errors.New("timeout")
	records, err := store.List(ctx)
	require.NoError(t, err, "list falls back to the index")
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Put(ctx, database.IdentityRecord{Name: "Frank", Embedding: []float32{0, 0, 1}})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, rec.ID))
	assert.Zero(t, store.Index().Len())

	err = store.Delete(ctx, rec.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestStorePing(t *testing.T) {
	store, backend := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))

	backend.PingError = errors.New("down")
	assert.ErrorIs(t, store.Ping(context.Background()), database.ErrStoreUnavailable)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"validation kept", database.ErrValidationFailed, database.ErrValidationFailed},
		{"not found kept", database.ErrNotFound, database.ErrNotFound},
		{"canceled kept", context.Canceled, context.Canceled},
		{"deadline becomes unavailable", context.DeadlineExceeded, database.ErrStoreUnavailable},
		{"driver error becomes unavailable", errors.New("dial tcp: refused"), database.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := newKeyLock()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("k")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, kl.size())
}
