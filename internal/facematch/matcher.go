package facematch

import (
	"errors"
	"math"
	"sync"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/gallery"
)

// Recognize finds the gallery identity nearest to query by a linear scan.
// The running minimum starts at the first identity and is replaced only by a
// distance smaller beyond tieEpsilon. A nearest distance above
// opts.Threshold, or an empty gallery, yields an unknown match.
func Recognize(query gallery.Embedding, g *gallery.Gallery, opts Options) (Match, error) {
	dim := g.Dim()
	if dim == 0 {
		return Match{}, nil
	}
	if err := query.Validate(dim); err != nil {
		return Match{}, err
	}

	bestName := ""
	bestDist := math.Inf(1)
	first := true
	g.Range(func(name string, emb gallery.Embedding) bool {
		d := opts.Metric.Distance(query, emb)
		if first || closer(d, bestDist) {
			bestName, bestDist, first = name, d, false
		}
		return true
	})

	return decide(bestName, bestDist, first, opts), nil
}

// closer reports whether d beats best by more than rounding noise.
func closer(d, best float64) bool {
	return d < best-tieEpsilon*math.Max(1, math.Abs(best))
}

func decide(name string, dist float64, none bool, opts Options) Match {
	if none {
		return Match{}
	}
	if dist > opts.Threshold {
		return Match{Distance: dist}
	}
	return Match{Name: name, Distance: dist, Known: true}
}

// Matcher applies Options with a candidate Strategy. The HNSW index is built
// lazily and rebuilt whenever the gallery changes.
type Matcher struct {
	opts     Options
	strategy Strategy

	mu      sync.Mutex
	index   *database.HNSWIndex
	indexed *gallery.Gallery
}

func NewMatcher(opts Options, strategy Strategy) *Matcher {
	if strategy == "" {
		strategy = StrategyLinear
	}
	return &Matcher{opts: opts, strategy: strategy}
}

// Options returns the recognition options.
func (m *Matcher) Options() Options {
	return m.opts
}

// Strategy returns the candidate strategy.
func (m *Matcher) Strategy() Strategy {
	return m.strategy
}

// Recognize matches query against g using the configured strategy.
func (m *Matcher) Recognize(query gallery.Embedding, g *gallery.Gallery) (Match, error) {
	if m.strategy != StrategyHNSW {
		return Recognize(query, g, m.opts)
	}

	dim := g.Dim()
	if dim == 0 {
		return Match{}, nil
	}
	if err := query.Validate(dim); err != nil {
		return Match{}, err
	}

	names, err := m.candidates(query, g)
	if errors.Is(err, database.ErrIndexEmpty) {
		return Recognize(query, g, m.opts)
	}
	if err != nil {
		return Match{}, err
	}

	bestName := ""
	bestDist := math.Inf(1)
	first := true
	for _, name := range names {
		emb, ok := g.Lookup(name)
		if !ok {
			continue
		}
		d := m.opts.Metric.Distance(query, emb)
		if first || closer(d, bestDist) {
			bestName, bestDist, first = name, d, false
		}
	}
	return decide(bestName, bestDist, first, m.opts), nil
}

func (m *Matcher) candidates(query gallery.Embedding, g *gallery.Gallery) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := g.Version()
	if m.index == nil || m.indexed != g || m.index.Version() != version {
		entries := g.Entries()
		names := make([]string, len(entries))
		vectors := make([][]float32, len(entries))
		for i, e := range entries {
			names[i] = e.Name
			vectors[i] = e.Embedding
		}

		idx := database.NewHNSWIndex(m.opts.Metric == MetricCosine)
		if err := idx.Build(names, vectors, version); err != nil {
			return nil, err
		}
		m.index = idx
		m.indexed = g
	}

	return m.index.Search(query, constants.HNSWCandidateCount)
}
