package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// ErrIndexEmpty is returned by Search when nothing has been indexed.
var ErrIndexEmpty = errors.New("index not initialized")

// HNSWIndex wraps the HNSW graph for identity embedding search. Nodes are
// keyed by identity name.
type HNSWIndex struct {
	graph    *hnsw.Graph[string]
	distance hnsw.DistanceFunc
	version  uint64 // gallery version the graph was built from
	mu       sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index. Cosine metrics use cosine
// distance; every other metric ranks by Euclidean distance, which orders
// candidates the same way as squared Euclidean distance.
func NewHNSWIndex(cosine bool) *HNSWIndex {
	d := hnsw.EuclideanDistance
	if cosine {
		d = hnsw.CosineDistance
	}
	return &HNSWIndex{distance: d}
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = h.distance
	return g
}

// Build replaces the index contents. names and vectors are parallel slices;
// version records which gallery state the index reflects.
func (h *HNSWIndex) Build(names []string, vectors [][]float32, version uint64) error {
	if len(names) != len(vectors) {
		return fmt.Errorf("building HNSW index: %d names for %d vectors", len(names), len(vectors))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.version = version
	if len(names) == 0 {
		h.graph = nil
		return nil
	}

	g := h.newGraph()
	nodes := make([]hnsw.Node[string], 0, len(names))
	for i, name := range names {
		if len(vectors[i]) == 0 {
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(name, vectors[i]))
	}
	g.Add(nodes...)

	h.graph = g
	return nil
}

// Search finds up to k nearest identity names to the query embedding.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, ErrIndexEmpty
	}

	neighbors := h.graph.Search(query, k)
	names := make([]string, len(neighbors))
	for i, n := range neighbors {
		names[i] = n.Key
	}
	return names, nil
}

// Version returns the gallery version the index was last built from.
func (h *HNSWIndex) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Count returns the number of indexed identities.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}
