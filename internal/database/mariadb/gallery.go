package mariadb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
)

// GalleryRepository stores gallery snapshots in MariaDB/MySQL. Embeddings are
// packed as little-endian float32 blobs.
type GalleryRepository struct {
	pool *Pool
}

func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// Load returns the stored snapshot, or an empty one if nothing was saved yet.
func (r *GalleryRepository) Load(ctx context.Context) (*database.Snapshot, error) {
	snap := database.NewSnapshot()

	err := r.pool.db.QueryRowContext(ctx,
		"SELECT version, dim, saved_at FROM gallery_snapshots WHERE id = 1",
	).Scan(&snap.Version, &snap.Dim, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot metadata: %w", err)
	}

	rows, err := r.pool.db.QueryContext(ctx, "SELECT name, embedding FROM identities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		emb, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", name, err)
		}
		snap.Identities[name] = emb
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in one transaction.
func (r *GalleryRepository) Save(ctx context.Context, snap *database.Snapshot) error {
	if snap == nil {
		snap = database.NewSnapshot()
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM identities"); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}

	for name, emb := range snap.Identities {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO identities (name, embedding, dim, updated_at) VALUES (?, ?, ?, ?)",
			name, EncodeEmbedding(emb), len(emb), savedAt)
		if err != nil {
			return fmt.Errorf("insert identity %q: %w", name, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gallery_snapshots (id, version, dim, saved_at) VALUES (1, ?, ?, ?)
		ON DUPLICATE KEY UPDATE version = VALUES(version), dim = VALUES(dim), saved_at = VALUES(saved_at)`,
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
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// EncodeEmbedding packs an embedding as little-endian float32 values.
func EncodeEmbedding(emb []float32) []byte {
	buf := make([]byte, 4*len(emb))
	for i, v := range emb {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding unpacks a blob written by EncodeEmbedding.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	emb := make([]float32, len(blob)/4)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return emb, nil
}

func splitStatements(script string) []string {
	var out []string
	for stmt := range strings.SplitSeq(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

var (
	_ database.GalleryStore    = (*GalleryRepository)(nil)
	_ database.IdentityCounter = (*GalleryRepository)(nil)
)
