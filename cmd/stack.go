package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/database/jsonfile"
	"github.com/kozaktomas/face-id/internal/database/mariadb"
	"github.com/kozaktomas/face-id/internal/database/postgres"
	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/inference"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// loadConfig reads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore connects the configured gallery backend. The returned close
// function releases database connections and is never nil.
func openStore(cfg *config.Config) (database.GalleryStore, func(), error) {
	switch cfg.Gallery.Backend {
	case config.BackendPostgres:
		if cfg.Database.URL == "" {
			return nil, nil, errors.New("DATABASE_URL environment variable is required")
		}
		pool, err := postgres.Initialize(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		store, err := database.GetPostgresGalleryStore()
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	case config.BackendMySQL:
		if cfg.Database.MySQLDSN == "" {
			return nil, nil, errors.New("MYSQL_DSN environment variable is required")
		}
		pool, err := mariadb.Initialize(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		store, err := database.GetMySQLGalleryStore()
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	default:
		return jsonfile.New(cfg.Gallery.Path), func() {}, nil
	}
}

// loadGallery reads the gallery from store. A failed load is logged and
// yields an empty gallery with loaded set to false.
func loadGallery(ctx context.Context, store database.GalleryStore) (g *gallery.Gallery, loaded bool) {
	g, err := gallery.Load(ctx, store)
	if err != nil {
		logging.Warn(nil, "starting with an empty gallery: "+err.Error())
		return gallery.New(), false
	}
	logging.Info(logging.Fields{"identities": g.Len(), "dim": g.Dim()}, "gallery loaded")
	return g, true
}

// storeWritable reports whether saving a fresh gallery to store cannot lose
// identities. An unreadable snapshot file is moved aside, which makes the
// file store writable again. Database stores stay protected.
func storeWritable(store database.GalleryStore, loaded bool) bool {
	if loaded {
		return true
	}
	fileStore, ok := store.(*jsonfile.Store)
	if !ok {
		return false
	}
	moved, err := fileStore.SetAside(time.Now())
	if err != nil {
		logging.Error(nil, err.Error())
		return false
	}
	if moved != "" {
		logging.Warn(logging.Fields{"path": moved}, "unreadable gallery file kept")
	}
	return true
}

func poseFromConfig(p config.PoseConfig) align.Pose {
	return align.Pose{
		Width:          p.Width,
		Height:         p.Height,
		EyeXFraction:   p.EyeXFraction,
		EyeYFraction:   p.EyeYFraction,
		MinEyeDistance: p.MinEyeDistance,
	}
}

func newMatcher(cfg *config.Config) (*facematch.Matcher, error) {
	metric, err := facematch.ParseMetric(cfg.Match.Metric)
	if err != nil {
		return nil, err
	}
	strategy, err := facematch.ParseStrategy(cfg.Match.Strategy)
	if err != nil {
		return nil, err
	}
	return facematch.NewMatcher(facematch.Options{Threshold: cfg.Match.Threshold, Metric: metric}, strategy), nil
}

// newController wires the HTTP inference clients, the matcher and the
// enrollment session around g.
func newController(cfg *config.Config, g *gallery.Gallery, store database.GalleryStore, writable bool) (*pipeline.Controller, error) {
	matcher, err := newMatcher(cfg)
	if err != nil {
		return nil, err
	}

	processor := pipeline.NewProcessor(
		inference.NewDetector(cfg.Detector.URL, cfg.Detector.MinScore),
		inference.NewEmbedder(cfg.Embedding.URL),
		pipeline.ProcessorConfig{
			Pose:         poseFromConfig(cfg.Pose),
			Workers:      cfg.Pipeline.Workers,
			MaxImageSize: constants.MaxImageSize,
		},
	)

	return pipeline.NewController(processor, g, pipeline.ControllerConfig{
		Matcher:     matcher,
		Enrollment:  enroll.Config{Shots: cfg.Enrollment.Shots, Dim: cfg.Embedding.Dim},
		Store:       store,
		AutoSave:    cfg.Gallery.AutoSave,
		StoreUnread: !writable,
	}), nil
}
