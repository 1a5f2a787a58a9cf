package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.MySQLDSN == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	// DATETIME columns are scanned into time.Time.
	dsn, err := mysql.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS gallery_snapshots (
    id       TINYINT PRIMARY KEY,
    version  INT NOT NULL,
    dim      INT NOT NULL,
    saved_at DATETIME(6) NOT NULL
);
CREATE TABLE IF NOT EXISTS identities (
    name       VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin PRIMARY KEY,
    embedding  MEDIUMBLOB NOT NULL,
    dim        INT NOT NULL,
    updated_at DATETIME(6) NOT NULL
);`

// EnsureSchema creates the gallery tables if they do not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create gallery schema: %w", err)
		}
	}
	return nil
}

// Initialize connects to MariaDB, creates the schema and registers the
// gallery store as the active MySQL backend.
func Initialize(cfg *config.DatabaseConfig) (*Pool, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}

	repo := NewGalleryRepository(pool)
	database.RegisterMySQLBackend(func() database.GalleryStore { return repo })
	return pool, nil
}
