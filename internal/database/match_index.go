package database

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Strategy finds the record nearest to a query vector. Implementations are
// not safe for concurrent use; MatchIndex serializes writers against readers.
type Strategy interface {
	Add(rec *IdentityRecord)
	Remove(id string)
	// Nearest returns the best-scoring record and its cosine similarity,
	// or nil and 0 when the strategy holds no records.
	Nearest(query []float32) (*IdentityRecord, float64)
	Len() int
	Reset()
}

// Strategy names accepted by NewStrategy.
const (
	StrategyLinear = "linear"
	StrategyHNSW   = "hnsw"
)

// NewStrategy creates a match strategy by name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyLinear:
		return NewLinearStrategy(), nil
	case StrategyHNSW:
		return NewHNSWStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown match strategy %q (supported: %s, %s)", name, StrategyLinear, StrategyHNSW)
	}
}

// MatchIndex holds the in-memory view of registered identities and answers
// nearest-identity queries. One writer at a time; readers run concurrently.
type MatchIndex struct {
	mu       sync.RWMutex
	strategy Strategy
	byID     map[string]*IdentityRecord
	byName   map[string]string // NameKey -> ID
	dim      int
}

// NewMatchIndex creates an empty index for dim-sized embeddings.
func NewMatchIndex(strategy Strategy, dim int) *MatchIndex {
	if strategy == nil {
		strategy = NewLinearStrategy()
	}
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &MatchIndex{
		strategy: strategy,
		byID:     make(map[string]*IdentityRecord),
		byName:   make(map[string]string),
		dim:      dim,
	}
}

// Dim returns the embedding dimension the index accepts.
func (m *MatchIndex) Dim() int {
	return m.dim
}

// Query returns the identity with the highest similarity to embedding.
// The identity is reported only when its score is strictly greater than
// threshold; otherwise Identity is nil and Score carries the best score
// seen (0 for an empty index). Exact ties resolve to the earliest
// registration, then the smallest ID.
func (m *MatchIndex) Query(embedding []float32, threshold float64) (MatchResult, error) {
	if err := ValidateEmbedding(embedding, m.dim); err != nil {
		return MatchResult{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	best, score := m.strategy.Nearest(embedding)
	if best == nil {
		return MatchResult{Score: 0}, nil
	}
	if score > threshold {
		rec := *best
		return MatchResult{Identity: &rec, Score: score}, nil
	}
	return MatchResult{Score: score}, nil
}

// Upsert adds rec to the index. A record with the same ID is replaced and a
// record with the same NameKey is superseded; the superseded ID is returned.
func (m *MatchIndex) Upsert(rec IdentityRecord) (string, error) {
	if rec.ID == "" {
		return "", fmt.Errorf("%w: record has no id", ErrValidationFailed)
	}
	if rec.NameKey == "" {
		return "", fmt.Errorf("%w: record %s has no name key", ErrValidationFailed, rec.ID)
	}
	if err := ValidateEmbedding(rec.Embedding, m.dim); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsertLocked(&rec), nil
}

func (m *MatchIndex) upsertLocked(rec *IdentityRecord) string {
	var superseded string
	if prevID, ok := m.byName[rec.NameKey]; ok && prevID != rec.ID {
		m.removeLocked(prevID)
		superseded = prevID
	}
	if prev, ok := m.byID[rec.ID]; ok {
		if prev.NameKey != rec.NameKey {
			delete(m.byName, prev.NameKey)
		}
		m.strategy.Remove(rec.ID)
	}
	m.byID[rec.ID] = rec
	m.byName[rec.NameKey] = rec.ID
	m.strategy.Add(rec)
	return superseded
}

// Remove deletes the record with id. It reports whether a record was removed.
func (m *MatchIndex) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *MatchIndex) removeLocked(id string) bool {
	rec, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	if m.byName[rec.NameKey] == id {
		delete(m.byName, rec.NameKey)
	}
	m.strategy.Remove(id)
	return true
}

// Replace swaps the whole index content for records, typically the full
// store contents loaded at startup. Invalid records are rejected and the
// index is left unchanged.
func (m *MatchIndex) Replace(records []IdentityRecord) error {
	for i := range records {
		if err := ValidateEmbedding(records[i].Embedding, m.dim); err != nil {
			return fmt.Errorf("record %s: %w", records[i].ID, err)
		}
		if records[i].ID == "" || records[i].NameKey == "" {
			return fmt.Errorf("%w: record %d is missing id or name key", ErrValidationFailed, i)
		}
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, compareRecords)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.strategy.Reset()
	m.byID = make(map[string]*IdentityRecord, len(sorted))
	m.byName = make(map[string]string, len(sorted))
	for i := range sorted {
		m.upsertLocked(&sorted[i])
	}
	return nil
}

// Get returns a copy of the record with id.
func (m *MatchIndex) Get(id string) (IdentityRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return IdentityRecord{}, false
	}
	return *rec, true
}

// Records returns a snapshot of every record ordered by registration time.
func (m *MatchIndex) Records() []IdentityRecord {
	m.mu.RLock()
	out := make([]IdentityRecord, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, *rec)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, compareRecords)
	return out
}

// Len returns the number of indexed records.
func (m *MatchIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// compareRecords orders records by registration time, then ID.
func compareRecords(a, b IdentityRecord) int {
	if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// preferred reports whether candidate with score beats best with bestScore.
func preferred(candidate *IdentityRecord, score float64, best *IdentityRecord, bestScore float64) bool {
	if best == nil {
		return true
	}
	if score != bestScore {
		return score > bestScore
	}
	return compareRecords(*candidate, *best) < 0
}
