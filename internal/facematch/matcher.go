// Package facematch implements distance computation and best-match selection
// over face embeddings. It is a pure computation layer: it never touches
// persisted state, so the same inputs always produce the same match.
package facematch

import (
	"errors"
	"fmt"
	"math"
)

// Metric selects how the distance between two embeddings is computed.
// It is chosen once at startup, not per call.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity. Vectors are normalized
	// internally; they do not need to be unit length.
	MetricCosine Metric = "cosine"
	// MetricEuclidean is the raw L2 distance.
	MetricEuclidean Metric = "euclidean"
	// MetricEuclideanL2 is the L2 distance after normalizing both vectors.
	MetricEuclideanL2 Metric = "euclidean_l2"
)

// ErrDimensionMismatch is returned when a candidate embedding does not share
// the probe's dimensionality. This is a caller error, not a no-match outcome.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrNoCandidates is returned when BestMatch is called with an empty
// candidate set. Callers are expected to detect the empty enrolled
// population before matching and report it as its own outcome.
var ErrNoCandidates = errors.New("no candidate embeddings")

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean, MetricEuclideanL2:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unsupported distance metric %q", s)
}

// Candidate is one enrolled embedding considered during matching.
type Candidate struct {
	CadetID   int64
	Embedding []float32
}

// Match is a successful best-match result.
type Match struct {
	CadetID    int64
	Index      int     // position of the winning candidate in the input slice
	Distance   float64 // raw distance under the configured metric
	Confidence float64 // derived, descriptive score in [0,1]
}

// Matcher computes distances under a fixed metric. MaxEuclidean is the
// normalization constant for euclidean confidence scores; it has no effect
// on the match decision itself.
type Matcher struct {
	metric       Metric
	maxEuclidean float64
}

// DefaultMaxEuclideanDistance is an empirical upper bound on realistic
// embedding distances, used only to map euclidean distances into a [0,1]
// confidence. It is configurable because it has no principled derivation.
const DefaultMaxEuclideanDistance = 4.0

// NewMatcher creates a matcher for the given metric. A non-positive
// maxEuclideanDistance falls back to the default.
func NewMatcher(metric Metric, maxEuclideanDistance float64) *Matcher {
	if maxEuclideanDistance <= 0 {
		maxEuclideanDistance = DefaultMaxEuclideanDistance
	}
	return &Matcher{metric: metric, maxEuclidean: maxEuclideanDistance}
}

// Metric returns the configured metric.
func (m *Matcher) Metric() Metric {
	return m.metric
}

// norm returns the L2 norm of v, treating a zero vector as norm 1 so that
// normalization never divides by zero.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return 1
	}
	return n
}

// Distance computes the distance between two embeddings of equal length.
func (m *Matcher) Distance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	switch m.metric {
	case MetricCosine:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		similarity := dot / (norm(a) * norm(b))
		// Clamp to [-1, 1] to handle floating point errors.
		if similarity > 1 {
			similarity = 1
		}
		if similarity < -1 {
			similarity = -1
		}
		return 1 - similarity, nil

	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), nil

	case MetricEuclideanL2:
		na, nb := norm(a), norm(b)
		var sum float64
		for i := range a {
			d := float64(a[i])/na - float64(b[i])/nb
			sum += d * d
		}
		return math.Sqrt(sum), nil
	}

	return 0, fmt.Errorf("unsupported distance metric %q", m.metric)
}

// Confidence maps a distance to a descriptive score in [0,1]. It decreases
// monotonically with distance and is never part of the match decision.
func (m *Matcher) Confidence(distance float64) float64 {
	var c float64
	if m.metric == MetricCosine {
		// Cosine distance is already 1 - similarity.
		c = 1 - distance
	} else {
		c = 1 - distance/m.maxEuclidean
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// BestMatch scans every candidate, selects the global minimum distance and
// accepts it when it is at or below threshold. Ties are broken by first
// occurrence in the input slice, so the result is deterministic regardless
// of how callers assembled the candidates. A minimum above threshold returns
// (nil, nil): no match is a normal outcome, not an error.
func (m *Matcher) BestMatch(probe []float32, candidates []Candidate, threshold float64) (*Match, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	bestIndex := -1
	bestDistance := math.Inf(1)
	for i := range candidates {
		d, err := m.Distance(probe, candidates[i].Embedding)
		if err != nil {
			return nil, fmt.Errorf("candidate %d (cadet %d): %w", i, candidates[i].CadetID, err)
		}
		if d < bestDistance {
			bestDistance = d
			bestIndex = i
		}
	}

	if bestDistance > threshold {
		return nil, nil
	}

	return &Match{
		CadetID:    candidates[bestIndex].CadetID,
		Index:      bestIndex,
		Distance:   bestDistance,
		Confidence: m.Confidence(bestDistance),
	}, nil
}
