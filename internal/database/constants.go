package database

// HNSW index parameters for 128-dim reference embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size for pgvector queries.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3

	// HNSWMinSearch is the smallest candidate pool requested from the graph.
	HNSWMinSearch = 50
)

// MaxCosineDistance is returned for inputs that have no defined angle.
const MaxCosineDistance = 2.0
