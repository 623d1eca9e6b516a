// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// MockBackend is an in-memory implementation of database.Backend and
// database.RecognitionLogger.
type MockBackend struct {
	mu         sync.RWMutex
	identities map[string]database.IdentityRecord
	logs       []database.RecognitionEntry
	puts       int
	closed     bool

	// Error injection
	GetAllError         error
	GetError            error
	CountError          error
	PutError            error
	DeleteError         error
	PingError           error
	LogRecognitionError error

	// PutErrors are returned by successive Put calls before PutError applies.
	PutErrors []error

	// PutDelay blocks each Put until it elapses or the context ends.
	PutDelay time.Duration
}

// NewMockBackend creates a new empty mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		identities: make(map[string]database.IdentityRecord),
	}
}

// AddIdentity seeds the store without going through Put
func (m *MockBackend) AddIdentity(rec database.IdentityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[rec.ID] = rec
}

// GetAll returns every identity ordered by registration time, then ID
func (m *MockBackend) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.IdentityRecord, 0, len(m.identities))
	for _, rec := range m.identities {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b database.IdentityRecord) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Get retrieves an identity by ID
func (m *MockBackend) Get(ctx context.Context, id string) (*database.IdentityRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.identities[id]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	return &rec, nil
}

// Count returns the number of identities
func (m *MockBackend) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Put stores rec, replacing any identity with the same name key
func (m *MockBackend) Put(ctx context.Context, rec database.IdentityRecord) (string, error) {
	if m.PutDelay > 0 {
		select {
		case <-time.After(m.PutDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if len(m.PutErrors) > 0 {
		err := m.PutErrors[0]
		m.PutErrors = m.PutErrors[1:]
		if err != nil {
			return "", err
		}
	} else if m.PutError != nil {
		return "", m.PutError
	}

	var superseded string
	for id, existing := range m.identities {
		if existing.NameKey == rec.NameKey && id != rec.ID {
			delete(m.identities, id)
			superseded = id
		}
	}
	m.identities[rec.ID] = rec
	return superseded, nil
}

// Delete removes an identity
func (m *MockBackend) Delete(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return fmt.Errorf("identity %s: %w", id, database.ErrNotFound)
	}
	delete(m.identities, id)
	return nil
}

// Ping returns PingError
func (m *MockBackend) Ping(ctx context.Context) error {
	return m.PingError
}

// Close marks the backend closed
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockBackend) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Puts returns the number of Put calls, failed ones included
func (m *MockBackend) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// LogRecognition records entries in memory
func (m *MockBackend) LogRecognition(ctx context.Context, entries []database.RecognitionEntry) error {
	if m.LogRecognitionError != nil {
		return m.LogRecognitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entries...)
	return nil
}

// Logged returns the recorded recognition entries
func (m *MockBackend) Logged() []database.RecognitionEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.logs)
}

// Compile-time interface checks
var (
	_ database.Backend           = (*MockBackend)(nil)
	_ database.RecognitionLogger = (*MockBackend)(nil)
)
