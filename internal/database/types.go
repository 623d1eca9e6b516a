package database

import (
	"time"
)

// IdentityRecord is one registered person. Records are immutable once
// committed; a later registration under the same name key supersedes the
// record instead of mutating it.
type IdentityRecord struct {
	ID           string
	Name         string
	NameKey      string // normalized Name, the identity key
	Embedding    []float32
	RegisteredAt time.Time
	Accepted     bool
}

// Dim returns the embedding dimension of the record.
func (r *IdentityRecord) Dim() int {
	return len(r.Embedding)
}

// MatchResult is the outcome of a nearest-identity query.
// Identity is nil when no record scored above the threshold.
type MatchResult struct {
	Identity *IdentityRecord
	Score    float64
}

// Matched reports whether the query resolved to a known identity.
func (m MatchResult) Matched() bool {
	return m.Identity != nil
}

// DisplayName returns the matched name or UnknownName.
func (m MatchResult) DisplayName() string {
	if m.Identity == nil {
		return UnknownName
	}
	return m.Identity.Name
}

// RecognitionEntry is one row of the recognition log.
type RecognitionEntry struct {
	IdentityID string // empty for unknown faces
	Name       string
	Score      float64
	BBox       [4]float64 // x, y, width, height relative to the frame
	CreatedAt  time.Time
}

// IndexSnapshotMetadata describes a persisted index snapshot.
type IndexSnapshotMetadata struct {
	RecordCount int       `json:"record_count"`
	Dim         int       `json:"dim"`
	SavedAt     time.Time `json:"saved_at"`
	Version     int       `json:"version"`
}
