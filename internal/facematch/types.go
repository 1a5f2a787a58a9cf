// Package facematch decides which gallery identity, if any, a face embedding
// belongs to. It is shared between the CLI, the frame pipeline and the web
// handlers.
package facematch

import (
	"fmt"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
)

// UnknownLabel is the display label for faces that match no identity.
const UnknownLabel = "unknown"

// Metric selects the distance function used for matching.
type Metric string

const (
	MetricL2Squared Metric = "l2sq"
	MetricL2        Metric = "l2"
	MetricCosine    Metric = "cosine"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricL2Squared, MetricL2, MetricCosine:
		return m, nil
	case "":
		return MetricL2Squared, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Distance returns the distance between a and b under m.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricL2:
		return database.L2(a, b)
	case MetricCosine:
		return database.CosineDistance(a, b)
	default:
		return database.SquaredL2(a, b)
	}
}

// Strategy selects how candidates are enumerated.
type Strategy string

const (
	// StrategyLinear scans every identity. Ties, including distances equal
	// within tieEpsilon, go to the identity that comes first in gallery order.
	StrategyLinear Strategy = "linear"
	// StrategyHNSW shortlists candidates with an HNSW graph and re-scores
	// them exactly. Intended for galleries too large to scan per face.
	StrategyHNSW Strategy = "hnsw"
)

// tieEpsilon is the relative distance difference below which two
// identities count as equally near.
const tieEpsilon = 1e-9

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyLinear, StrategyHNSW:
		return st, nil
	case "":
		return StrategyLinear, nil
	default:
		return "", fmt.Errorf("unknown match strategy %q", s)
	}
}

// Options controls recognition.
type Options struct {
	// Threshold is the largest distance still accepted as a known identity.
	Threshold float64
	Metric    Metric
}

// DefaultOptions returns the squared-L2 metric with the default threshold.
func DefaultOptions() Options {
	return Options{
		Threshold: constants.DefaultDistanceThreshold,
		Metric:    MetricL2Squared,
	}
}

// Match is the outcome of recognizing one embedding.
type Match struct {
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance"`
	Known    bool    `json:"known"`
}

// Label returns the identity name, or UnknownLabel when nothing matched.
func (m Match) Label() string {
	if !m.Known {
		return UnknownLabel
	}
	return m.Name
}
