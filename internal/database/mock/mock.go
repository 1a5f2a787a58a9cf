// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kozaktomas/face-id/internal/database"
)

// MockGalleryStore is an in-memory implementation of database.GalleryStore
type MockGalleryStore struct {
	mu       sync.RWMutex
	snapshot *database.Snapshot
	saves    int

	// Error injection
	LoadError  error
	SaveError  error
	CountError error
}

// NewMockGalleryStore creates a new mock gallery store with nothing stored
func NewMockGalleryStore() *MockGalleryStore {
	return &MockGalleryStore{}
}

// SetSnapshot replaces the stored snapshot
func (m *MockGalleryStore) SetSnapshot(s *database.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = cloneSnapshot(s)
}

// Snapshot returns a copy of the stored snapshot, or nil if nothing was saved
func (m *MockGalleryStore) Snapshot() *database.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSnapshot(m.snapshot)
}

// Saves returns how many times Save succeeded
func (m *MockGalleryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Load returns the stored snapshot, or an empty one
func (m *MockGalleryStore) Load(ctx context.Context) (*database.Snapshot, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return database.NewSnapshot(), nil
	}
	return cloneSnapshot(m.snapshot), nil
}

// Save replaces the stored snapshot
func (m *MockGalleryStore) Save(ctx context.Context, s *database.Snapshot) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = cloneSnapshot(s)
	m.saves++
	return nil
}

// Count returns the number of stored identities
func (m *MockGalleryStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Len(), nil
}

func cloneSnapshot(s *database.Snapshot) *database.Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Identities = maps.Clone(s.Identities)
	for name, emb := range c.Identities {
		c.Identities[name] = slices.Clone(emb)
	}
	return &c
}

var (
	_ database.GalleryStore    = (*MockGalleryStore)(nil)
	_ database.IdentityCounter = (*MockGalleryStore)(nil)
)
