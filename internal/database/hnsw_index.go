package database

import (
	"math/rand"
	"slices"

	"github.com/coder/hnsw"
)

// HNSWStrategy answers queries from an HNSW graph and re-scores the
// candidates exactly. The graph has no real deletion, so removed records
// are tombstoned and the graph is rebuilt once tombstones pile up.
type HNSWStrategy struct {
	graph      *hnsw.Graph[string]
	live       map[string]*IdentityRecord
	inGraph    map[string]struct{}
	tombstones int
}

// NewHNSWStrategy creates an empty HNSW strategy.
func NewHNSWStrategy() *HNSWStrategy {
	return &HNSWStrategy{
		live:    make(map[string]*IdentityRecord),
		inGraph: make(map[string]struct{}),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(hnswSeed))
	return g
}

func (h *HNSWStrategy) Add(rec *IdentityRecord) {
	h.live[rec.ID] = rec
	if _, ok := h.inGraph[rec.ID]; ok {
		// Stale vector under the same key.
		h.rebuild()
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	h.inGraph[rec.ID] = struct{}{}
}

func (h *HNSWStrategy) Remove(id string) {
	if _, ok := h.live[id]; !ok {
		return
	}
	delete(h.live, id)
	h.tombstones++
	if float64(h.tombstones) > hnswRebuildRatio*float64(len(h.live)) {
		h.rebuild()
	}
}

func (h *HNSWStrategy) rebuild() {
	records := make([]*IdentityRecord, 0, len(h.live))
	for _, rec := range h.live {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b *IdentityRecord) int {
		return compareRecords(*a, *b)
	})

	h.inGraph = make(map[string]struct{}, len(records))
	h.tombstones = 0
	if len(records) == 0 {
		h.graph = nil
		return
	}
	g := newGraph()
	for _, rec := range records {
		g.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
		h.inGraph[rec.ID] = struct{}{}
	}
	h.graph = g
}

func (h *HNSWStrategy) Nearest(query []float32) (*IdentityRecord, float64) {
	if len(h.live) == 0 || h.graph == nil {
		return nil, 0
	}

	k := min(HNSWCandidates*HNSWSearchMultiplier+h.tombstones, len(h.inGraph))
	var best *IdentityRecord
	var bestScore float64
	ties := 0
	for _, n := range h.graph.Search(query, k) {
		rec, ok := h.live[n.Key]
		if !ok {
			continue
		}
		score := CosineSimilarity(query, rec.Embedding)
		switch {
		case best == nil || score > bestScore:
			best, bestScore, ties = rec, score, 0
		case score == bestScore:
			ties++
			if compareRecords(*rec, *best) < 0 {
				best = rec
			}
		}
	}
	// The graph only sees k candidates, so a tie at the top may hide an
	// earlier record. Every candidate tombstoned falls through here too.
	if best != nil && ties == 0 {
		return best, bestScore
	}
	return h.scan(query)
}

func (h *HNSWStrategy) scan(query []float32) (*IdentityRecord, float64) {
	var best *IdentityRecord
	var bestScore float64
	for _, rec := range h.live {
		score := CosineSimilarity(query, rec.Embedding)
		if preferred(rec, score, best, bestScore) {
			best, bestScore = rec, score
		}
	}
	return best, bestScore
}

func (h *HNSWStrategy) Len() int {
	return len(h.live)
}

func (h *HNSWStrategy) Reset() {
	h.graph = nil
	h.live = make(map[string]*IdentityRecord)
	h.inGraph = make(map[string]struct{})
	h.tombstones = 0
}
