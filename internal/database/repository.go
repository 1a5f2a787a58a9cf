package database

import (
	"context"
)

// GalleryStore persists whole gallery snapshots.
type GalleryStore interface {
	// Load returns the stored snapshot. An absent source is not an error and
	// yields an empty snapshot.
	Load(ctx context.Context) (*Snapshot, error)
	// Save replaces the stored snapshot atomically.
	Save(ctx context.Context, snapshot *Snapshot) error
}

// IdentityCounter is implemented by stores that can count identities
// without loading every embedding.
type IdentityCounter interface {
	Count(ctx context.Context) (int, error)
}
