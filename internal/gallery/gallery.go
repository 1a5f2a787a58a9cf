// Package gallery holds the in-memory identity gallery: a mapping from a
// person's name to the single embedding that represents them.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
)

var (
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrEmptyName          = errors.New("identity name is empty")
	ErrNonFinite          = errors.New("embedding contains NaN or Inf")
	ErrEmptyEmbedding     = errors.New("embedding is empty")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// Embedding is a fixed-length face descriptor produced by the embedding model.
type Embedding []float32

// Clone returns a copy that shares no memory with e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	return slices.Clone(e)
}

// Validate checks that e is non-empty, finite and, when dim > 0, of length dim.
func (e Embedding) Validate(dim int) error {
	if len(e) == 0 {
		return ErrEmptyEmbedding
	}
	if dim > 0 && len(e) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e), dim)
	}
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d", ErrNonFinite, i)
		}
	}
	return nil
}

// Entry is one identity as returned by Entries.
type Entry struct {
	Name      string
	Embedding Embedding
}

// Gallery maps identity names to embeddings. It is safe for concurrent use;
// recognition takes read locks while enrollment commits take the write lock.
type Gallery struct {
	mu      sync.RWMutex
	order   []string // stable iteration order
	items   map[string]Embedding
	dim     int
	version uint64
}

// New returns an empty gallery with no dimension fixed yet.
func New() *Gallery {
	return &Gallery{items: make(map[string]Embedding)}
}

// Lookup returns a copy of the embedding stored under name.
func (g *Gallery) Lookup(name string) (Embedding, bool) {
	key := NormalizeName(name)

	g.mu.RLock()
	defer g.mu.RUnlock()

	emb, ok := g.items[key]
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Find resolves a human-typed name: an exact match first, then a match that
// ignores case, diacritics and dashes. It returns the stored name.
func (g *Gallery) Find(name string) (string, Embedding, bool) {
	if emb, ok := g.Lookup(name); ok {
		return NormalizeName(name), emb, true
	}

	folded := FoldName(name)
	if folded == "" {
		return "", nil, false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.order {
		if FoldName(n) == folded {
			return n, g.items[n].Clone(), true
		}
	}
	return "", nil, false
}

// Upsert stores a copy of emb under name, overwriting any previous entry.
// The first successful insert fixes the gallery dimension. On error the
// gallery is left unchanged.
func (g *Gallery) Upsert(name string, emb Embedding) error {
	key := NormalizeName(name)
	if key == "" {
		return ErrEmptyName
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := emb.Validate(g.dim); err != nil {
		return err
	}

	if g.dim == 0 {
		g.dim = len(emb)
	}
	if _, exists := g.items[key]; !exists {
		g.order = append(g.order, key)
	}
	g.items[key] = emb.Clone()
	g.version++
	return nil
}

// Entries returns copies of all identities in stable order: load order
// first, then new names in insertion order. Overwrites keep their position.
func (g *Gallery) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entries := make([]Entry, len(g.order))
	for i, name := range g.order {
		entries[i] = Entry{Name: name, Embedding: g.items[name].Clone()}
	}
	return entries
}

// Range calls fn for every identity in Entries order while holding the read
// lock. fn must not retain or modify emb and must not call back into g.
// Iteration stops when fn returns false.
func (g *Gallery) Range(fn func(name string, emb Embedding) bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, name := range g.order {
		if !fn(name, g.items[name]) {
			return
		}
	}
}

// Names returns identity names in the same order as Entries.
func (g *Gallery) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Dim returns the fixed embedding dimension, or 0 while the gallery is empty.
func (g *Gallery) Dim() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dim
}

// Version increases on every successful mutation.
func (g *Gallery) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Snapshot captures the gallery in its persisted form.
func (g *Gallery) Snapshot() *database.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := database.NewSnapshot()
	s.SavedAt = time.Now().UTC()
	s.Dim = g.dim
	for _, name := range g.order {
		s.Identities[name] = slices.Clone(g.items[name])
	}
	return s
}

// FromSnapshot builds a gallery from a persisted snapshot. A nil or empty
// snapshot yields an empty gallery. Names are loaded in sorted order so
// iteration is reproducible across restarts.
func FromSnapshot(s *database.Snapshot) (*Gallery, error) {
	g := New()
	if s == nil || len(s.Identities) == 0 {
		return g, nil
	}
	if s.Version != database.CurrentSnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}

	names := make([]string, 0, len(s.Identities))
	for name := range s.Identities {
		names = append(names, name)
	}
	sort.Strings(names)

	g.dim = s.Dim
	for _, name := range names {
		if err := g.Upsert(name, s.Identities[name]); err != nil {
			return nil, fmt.Errorf("identity %q: %w", name, err)
		}
	}
	g.version = 0
	return g, nil
}

// Load reads a gallery from store. An absent source yields an empty gallery.
func Load(ctx context.Context, store database.GalleryStore) (*Gallery, error) {
	s, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading gallery: %w", err)
	}
	return FromSnapshot(s)
}

// Save writes the full gallery to store.
func (g *Gallery) Save(ctx context.Context, store database.GalleryStore) error {
	if err := store.Save(ctx, g.Snapshot()); err != nil {
		return fmt.Errorf("saving gallery: %w", err)
	}
	return nil
}
