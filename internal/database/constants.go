package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from
	// HNSW than asked for, so enough survive the active-record filter.
	HNSWSearchMultiplier = 3

	// HNSWMinSearchK is the minimum candidate pool for better recall.
	HNSWMinSearchK = 32
)
