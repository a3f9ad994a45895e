package engine

import (
	"strings"

	"github.com/miradorstack/firewall-mcp/internal/models"
)

// fieldPair is one correlation field entry resolved into the semantic names
// used on the primary and the secondary side.
type fieldPair struct {
	key       string
	primary   string
	secondary string
}

func parseFieldPairs(entries []string) []fieldPair {
	pairs := make([]fieldPair, 0, len(entries))
	for _, entry := range entries {
		primary, secondary := models.SplitFieldPair(entry)
		pairs = append(pairs, fieldPair{key: strings.TrimSpace(entry), primary: primary, secondary: secondary})
	}
	return pairs
}

// fieldWeights holds the per-field weight used by strength.
type fieldWeights struct {
	weights []float64
	total   float64
}

// newFieldWeights assigns the caller's weight to each named field and a
// uniform 1/n to the rest. An all-zero weighting falls back to uniform.
func newFieldWeights(pairs []fieldPair, supplied map[string]float64) fieldWeights {
	n := len(pairs)
	w := fieldWeights{weights: make([]float64, n)}
	if n == 0 {
		return w
	}
	uniform := 1 / float64(n)
	for i, pair := range pairs {
		weight, ok := supplied[pair.key]
		if !ok {
			weight = uniform
		}
		w.weights[i] = weight
		w.total += weight
	}
	if w.total <= 0 {
		w.total = 0
		for i := range w.weights {
			w.weights[i] = uniform
			w.total += uniform
		}
	}
	return w
}

// strength is the weighted fraction of matched fields, in [0,1]. Terms are
// summed in field order so a full match reproduces total exactly.
func (w fieldWeights) strength(matched []bool) float64 {
	if w.total <= 0 {
		return 0
	}
	sum := 0.0
	for i, ok := range matched {
		if ok {
			sum += w.weights[i]
		}
	}
	s := sum / w.total
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// accepts applies the AND/OR rule to a match vector.
func accepts(correlationType models.CorrelationType, matched []bool) bool {
	count := 0
	for _, ok := range matched {
		if ok {
			count++
		}
	}
	if correlationType == models.CorrelationAND {
		return count == len(matched) && count > 0
	}
	return count >= 1
}
