//go:build integration

package mariadb

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_DATABASE":      "testdb",
			"MARIADB_ROOT_PASSWORD": "root",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		MySQLDSN:     fmt.Sprintf("test:test@tcp(%s:%s)/testdb", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	// The server accepts connections slightly after the port opens.
	var pool *Pool
	for range 30 {
		if pool, err = NewPool(cfg); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to create schema: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func TestGalleryRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewGalleryRepository(pool)

	snap, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load empty gallery: %v", err)
	}
	if snap.Len() != 0 {
		t.Fatalf("Expected empty snapshot, got %d identities", snap.Len())
	}

	snap = database.NewSnapshot()
	snap.Dim = 3
	snap.SavedAt = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	snap.Identities["Jiří"] = []float32{0.1, 0.2, 0.3}
	snap.Identities["jiri"] = []float32{1, 2, 3}

	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("Expected 2 identities, got %d", got.Len())
	}
	for name, want := range snap.Identities {
		if !slices.Equal(got.Identities[name], want) {
			t.Errorf("Identity %s: expected %v, got %v", name, want, got.Identities[name])
		}
	}
}
