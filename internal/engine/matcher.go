package engine

import (
	"time"

	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/models"
)

type verdict int

const (
	verdictUnmatched verdict = iota
	verdictMatched
	verdictOutOfScope
	verdictOutOfWindow
)

// matcher holds the primary-side index for one enhanced correlation run.
type matcher struct {
	catalog         *fields.Catalog
	pairs           []fieldPair
	weights         fieldWeights
	correlationType models.CorrelationType
	scope           *networkScope
	window          *temporalWindow

	// index[k] maps a normalised token of pairs[k].primary to primary record indices.
	index          []map[string][]int
	primaryTimes   []time.Time
	primaryHasTime []bool
}

func (m *matcher) indexPrimary(entityType models.EntityType, records []models.Record) {
	m.index = make([]map[string][]int, len(m.pairs))
	for k, pair := range m.pairs {
		idx := make(map[string][]int)
		for i, record := range records {
			tokens, ok := m.catalog.Resolve(entityType, pair.primary, record)
			if !ok {
				continue
			}
			seen := make(map[string]struct{}, len(tokens))
			for _, token := range tokens {
				if _, dup := seen[token]; dup {
					continue
				}
				seen[token] = struct{}{}
				idx[token] = append(idx[token], i)
			}
		}
		m.index[k] = idx
	}

	m.primaryTimes = make([]time.Time, len(records))
	m.primaryHasTime = make([]bool, len(records))
	for i, record := range records {
		m.primaryTimes[i], m.primaryHasTime[i] = m.catalog.Timestamp(entityType, record)
	}
}

func (m *matcher) secondaryFields() []fields.SemanticField {
	names := make([]fields.SemanticField, len(m.pairs))
	for i, pair := range m.pairs {
		names[i] = pair.secondary
	}
	return names
}

// evaluate decides whether record correlates with the primary set. Scope and
// window filters run before any field comparison.
func (m *matcher) evaluate(entityType models.EntityType, record models.Record) (models.CorrelationResult, verdict) {
	if !m.scope.admits(m.catalog, entityType, m.secondaryFields(), record) {
		return models.CorrelationResult{}, verdictOutOfScope
	}

	ts, hasTime := m.catalog.Timestamp(entityType, record)
	var eligible map[int]struct{}
	if m.window != nil {
		if !hasTime {
			return models.CorrelationResult{}, verdictOutOfWindow
		}
		eligible = m.window.eligible(ts, m.primaryTimes, m.primaryHasTime)
		if len(eligible) == 0 {
			return models.CorrelationResult{}, verdictOutOfWindow
		}
	}

	matched := make([]bool, len(m.pairs))
	matchedFields := make([]string, 0, len(m.pairs))
	for k, pair := range m.pairs {
		tokens, ok := m.catalog.Resolve(entityType, pair.secondary, record)
		if !ok {
			continue
		}
		if m.hit(k, tokens, eligible) {
			matched[k] = true
			matchedFields = append(matchedFields, pair.key)
		}
	}
	if !accepts(m.correlationType, matched) {
		return models.CorrelationResult{}, verdictUnmatched
	}

	res := models.CorrelationResult{
		EntityType:          entityType,
		MatchedFields:       matchedFields,
		CorrelationStrength: m.weights.strength(matched),
		Data:                record,
	}
	if hasTime {
		res.Timestamp = ts.Unix()
	}
	return res, verdictMatched
}

// hit reports whether any token equals the value of an eligible primary record.
// A nil eligible set means every primary is eligible.
func (m *matcher) hit(k int, tokens []string, eligible map[int]struct{}) bool {
	for _, token := range tokens {
		primaries := m.index[k][token]
		if eligible == nil && len(primaries) > 0 {
			return true
		}
		for _, i := range primaries {
			if _, ok := eligible[i]; ok {
				return true
			}
		}
	}
	return false
}
