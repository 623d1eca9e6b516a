package database

import (
	"slices"
)

// LinearStrategy scores every record. Records are kept in registration
// order so ties fall to the earliest registration.
type LinearStrategy struct {
	records []*IdentityRecord
}

// NewLinearStrategy creates an empty linear strategy.
func NewLinearStrategy() *LinearStrategy {
	return &LinearStrategy{}
}

func (l *LinearStrategy) Add(rec *IdentityRecord) {
	l.Remove(rec.ID)
	i, _ := slices.BinarySearchFunc(l.records, rec, func(a, b *IdentityRecord) int {
		return compareRecords(*a, *b)
	})
	l.records = slices.Insert(l.records, i, rec)
}

func (l *LinearStrategy) Remove(id string) {
	l.records = slices.DeleteFunc(l.records, func(r *IdentityRecord) bool {
		return r.ID == id
	})
}

func (l *LinearStrategy) Nearest(query []float32) (*IdentityRecord, float64) {
	var best *IdentityRecord
	var bestScore float64
	for _, rec := range l.records {
		score := CosineSimilarity(query, rec.Embedding)
		if best == nil || score > bestScore {
			best, bestScore = rec, score
		}
	}
	return best, bestScore
}

func (l *LinearStrategy) Len() int {
	return len(l.records)
}

func (l *LinearStrategy) Reset() {
	l.records = nil
}
