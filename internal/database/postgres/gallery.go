package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-id/internal/database"
)

// GalleryRepository stores gallery snapshots in PostgreSQL. Each identity is
// one row with a pgvector embedding; snapshot metadata lives in a single-row
// table. Save replaces everything in one transaction.
type GalleryRepository struct {
	pool *Pool
}

func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// Load returns the stored snapshot, or an empty one if nothing was saved yet.
func (r *GalleryRepository) Load(ctx context.Context) (*database.Snapshot, error) {
	snap := database.NewSnapshot()

	err := r.pool.QueryRow(ctx,
		"SELECT version, dim, saved_at FROM gallery_snapshots WHERE id = 1",
	).Scan(&snap.Version, &snap.Dim, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot metadata: %w", err)
	}

	rows, err := r.pool.Query(ctx, "SELECT name, embedding FROM identities ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		snap.Identities[name] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot.
func (r *GalleryRepository) Save(ctx context.Context, snap *database.Snapshot) error {
	if snap == nil {
		snap = database.NewSnapshot()
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO identities (name, embedding, dim, updated_at) VALUES ($1, $2, $3, $4)")
	if err != nil {
		return fmt.Errorf("prepare identity insert: %w", err)
	}
	defer stmt.Close()

	for name, emb := range snap.Identities {
		if _, err := stmt.ExecContext(ctx, name, pgvector.NewVector(emb), len(emb), savedAt); err != nil {
			return fmt.Errorf("insert identity %q: %w", name, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gallery_snapshots (id, version, dim, saved_at) VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, dim = EXCLUDED.dim, saved_at = EXCLUDED.saved_at`,
		snap.Version, snap.Dim, savedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored identities.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

var (
	_ database.GalleryStore    = (*GalleryRepository)(nil)
	_ database.IdentityCounter = (*GalleryRepository)(nil)
)
