// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultDistanceThreshold is the maximum squared L2 distance at which a
	// face is still considered a known identity. Lower values = stricter matching
	DefaultDistanceThreshold = 1.24

	// HNSWCandidateCount is the shortlist size requested from the HNSW index
	// before candidates are re-scored exactly
	HNSWCandidateCount = 16
)

// Enrollment constants
const (
	// DefaultEnrollmentShots is the number of captures averaged into one identity
	DefaultEnrollmentShots = 5
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for per-face processing
	WorkerPoolSize = 4

	// MaxImageSize is the maximum dimension (width or height) for frames sent to the detector
	MaxImageSize = 1920
)

// Snapshot constants
const (
	// SnapshotVersion is the persistence format version written by every gallery store
	SnapshotVersion = 1
)

// Detection constants
const (
	// DetectionOverlapIoU is the Intersection over Union above which two
	// detections are treated as the same face and the lower-scoring one is dropped
	DetectionOverlapIoU = 0.5
)
