package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Gallery    GalleryConfig
	Match      MatchConfig
	Enrollment EnrollmentConfig
	Pose       PoseConfig
	Detector   DetectorConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Web        WebConfig
	Log        LogConfig
	Pipeline   PipelineConfig
}

// Gallery storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

type GalleryConfig struct {
	Backend  string // file (default), postgres or mysql
	Path     string // snapshot file for the file backend
	AutoSave bool   // save after every enrollment commit, not only at shutdown
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"`
	Metric    string  `yaml:"metric"`   // l2sq, l2 or cosine
	Strategy  string  `yaml:"strategy"` // linear or hnsw
}

type EnrollmentConfig struct {
	Shots int `yaml:"shots"`
}

type PoseConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	EyeXFraction   float64 `yaml:"eye_x_fraction"`
	EyeYFraction   float64 `yaml:"eye_y_fraction"`
	MinEyeDistance float64 `yaml:"min_eye_distance"`
}

type DetectorConfig struct {
	URL      string  // defaults to http://localhost:8000
	MinScore float64 // detections below this score are dropped
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    `yaml:"dim"`
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MySQLDSN     string // MySQL/MariaDB DSN (e.g., faceid:faceid@tcp(mariadb:3306)/faceid)
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type WebConfig struct {
	Host           string
	Port           int
	Token          string // optional bearer token protecting the API
	AllowedOrigins []string
}

type LogConfig struct {
	Level string // logrus level name (default info)
	File  string // optional rotating log file
}

type PipelineConfig struct {
	Workers int // parallel align/embed workers per frame
}

// defaults mirrors the shape of defaults.yaml.
type defaults struct {
	Pose       PoseConfig       `yaml:"pose"`
	Match      MatchConfig      `yaml:"match"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a non-negative float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Gallery: GalleryConfig{
			Backend:  envString("GALLERY_BACKEND", BackendFile),
			Path:     envString("GALLERY_PATH", "gallery.json"),
			AutoSave: envBool("GALLERY_AUTOSAVE", false),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", d.Match.Threshold),
			Metric:    envString("MATCH_METRIC", d.Match.Metric),
			Strategy:  envString("MATCH_STRATEGY", d.Match.Strategy),
		},
		Enrollment: EnrollmentConfig{
			Shots: envInt("ENROLLMENT_SHOTS", d.Enrollment.Shots),
		},
		Pose: PoseConfig{
			Width:          envInt("POSE_WIDTH", d.Pose.Width),
			Height:         envInt("POSE_HEIGHT", d.Pose.Height),
			EyeXFraction:   envFloat("POSE_EYE_X_FRACTION", d.Pose.EyeXFraction),
			EyeYFraction:   envFloat("POSE_EYE_Y_FRACTION", d.Pose.EyeYFraction),
			MinEyeDistance: envFloat("POSE_MIN_EYE_DISTANCE", d.Pose.MinEyeDistance),
		},
		Detector: DetectorConfig{
			URL:      os.Getenv("DETECTOR_URL"),
			MinScore: envFloat("DETECTOR_MIN_SCORE", 0),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", d.Embedding.Dim),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MySQLDSN:     os.Getenv("MYSQL_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			Token:          os.Getenv("WEB_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		Pipeline: PipelineConfig{
			Workers: envInt("PIPELINE_WORKERS", 4),
		},
	}
}

// Validate reports configuration values the core cannot work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Gallery.Backend {
	case BackendFile:
		if c.Gallery.Path == "" {
			errs = append(errs, errors.New("GALLERY_PATH is required for the file backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendMySQL:
		if c.Database.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown gallery backend %q", c.Gallery.Backend))
	}

	switch c.Match.Metric {
	case "l2sq", "l2", "cosine":
	default:
		errs = append(errs, fmt.Errorf("unknown match metric %q", c.Match.Metric))
	}
	switch c.Match.Strategy {
	case "linear", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("unknown match strategy %q", c.Match.Strategy))
	}

	if c.Pose.EyeXFraction >= 0.5 {
		errs = append(errs, fmt.Errorf("POSE_EYE_X_FRACTION must be below 0.5, got %v", c.Pose.EyeXFraction))
	}
	if c.Pose.EyeYFraction <= 0 || c.Pose.EyeYFraction >= 1 {
		errs = append(errs, fmt.Errorf("POSE_EYE_Y_FRACTION must be in (0, 1), got %v", c.Pose.EyeYFraction))
	}

	return errors.Join(errs...)
}
