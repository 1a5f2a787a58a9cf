package database

import (
	"fmt"
	"sync"
)

var (
	providerMu           sync.RWMutex
	postgresGalleryStore func() GalleryStore
	mysqlGalleryStore    func() GalleryStore
	postgresInitialized  bool
	mysqlInitialized     bool
)

// RegisterPostgresBackend registers the PostgreSQL gallery store constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(store func() GalleryStore) {
	providerMu.Lock()
	defer providerMu.Unlock()
	postgresGalleryStore = store
	postgresInitialized = store != nil
}

// RegisterMySQLBackend registers the MySQL/MariaDB gallery store constructor.
// This is called by the mariadb package to avoid import cycles.
func RegisterMySQLBackend(store func() GalleryStore) {
	providerMu.Lock()
	defer providerMu.Unlock()
	mysqlGalleryStore = store
	mysqlInitialized = store != nil
}

// GetPostgresGalleryStore returns the gallery store of the PostgreSQL backend.
func GetPostgresGalleryStore() (GalleryStore, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	return postgresGalleryStore(), nil
}

// GetMySQLGalleryStore returns the gallery store of the MySQL/MariaDB backend.
func GetMySQLGalleryStore() (GalleryStore, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !mysqlInitialized {
		return nil, fmt.Errorf("MySQL backend not initialized: MYSQL_DSN is required")
	}
	return mysqlGalleryStore(), nil
}
