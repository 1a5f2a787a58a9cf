package database

import "github.com/kozaktomas/face-id/internal/constants"

// CurrentSnapshotVersion is the snapshot format written by every store.
const CurrentSnapshotVersion = constants.SnapshotVersion

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100
)
