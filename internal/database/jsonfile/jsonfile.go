// Package jsonfile stores gallery snapshots as a single JSON document on disk.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"

	"github.com/kozaktomas/face-id/internal/database"
)

// Store reads and writes one snapshot file. Writes go through a temporary
// file and rename, so a crash never leaves a half-written gallery behind.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing or empty file yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (*database.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return database.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading gallery file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return database.NewSnapshot(), nil
	}

	var snap database.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding gallery file %s: %w", s.path, err)
	}
	if snap.Identities == nil {
		snap.Identities = make(map[string][]float32)
	}
	return &snap, nil
}

// Save writes the snapshot atomically. Identity keys are emitted in sorted
// order, so equal galleries produce identical files.
func (s *Store) Save(ctx context.Context, snap *database.Snapshot) error {
	if snap == nil {
		snap = database.NewSnapshot()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding gallery: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating gallery directory: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing gallery file: %w", err)
	}
	return nil
}

// SetAside renames the snapshot file to <path>.corrupt-<timestamp> so a
// later Save cannot overwrite it. It returns the new location, or "" when
// there is no file.
func (s *Store) SetAside(now time.Time) (string, error) {
	target := s.path + ".corrupt-" + now.UTC().Format("20060102T150405")
	if err := os.Rename(s.path, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("moving unreadable gallery aside: %w", err)
	}
	return target, nil
}

var _ database.GalleryStore = (*Store)(nil)
