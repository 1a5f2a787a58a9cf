package database

import (
	"time"
)

// Snapshot is the persisted form of an identity gallery. Every backend
// stores and returns the same shape; the JSON tags define the file format.
type Snapshot struct {
	Version    int                  `json:"version"`
	SavedAt    time.Time            `json:"saved_at"`
	Dim        int                  `json:"dim"`
	Identities map[string][]float32 `json:"identities"`
}

// NewSnapshot returns an empty snapshot in the current format version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:    CurrentSnapshotVersion,
		Identities: make(map[string][]float32),
	}
}

// Len returns the number of identities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Identities)
}
