package database

// UnknownName is reported for faces that match no registered identity.
const UnknownName = "Unknown"

// DefaultMatchThreshold is the cosine similarity a match must exceed.
const DefaultMatchThreshold = 0.6

// DefaultEmbeddingDim is the embedding size produced by the face model.
const DefaultEmbeddingDim = 512

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWCandidates is the number of neighbours requested before exact
	// re-scoring.
	HNSWCandidates = 10

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to compensate for tombstoned nodes.
	HNSWSearchMultiplier = 3

	// hnswRebuildRatio triggers a graph rebuild once tombstones exceed
	// this fraction of live records.
	hnswRebuildRatio = 0.25

	// hnswSeed fixes level generation so rebuilt graphs are reproducible.
	hnswSeed = 1
)

const snapshotVersion = 1
