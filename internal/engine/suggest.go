package engine

import (
	"sort"
	"strings"

	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/patterns"
)

// Suggester proposes correlation field combinations for a set of entity types.
type Suggester struct {
	fields   *fields.Catalog
	patterns *patterns.Catalog
	scorer   ComboScorer
}

// NewSuggester wires the catalogs and scorer; nil arguments use the defaults.
func NewSuggester(fieldCatalog *fields.Catalog, patternCatalog *patterns.Catalog, scorer ComboScorer) *Suggester {
	if fieldCatalog == nil {
		fieldCatalog = fields.NewDefaultCatalog()
	}
	if patternCatalog == nil {
		patternCatalog = patterns.NewDefaultCatalog()
	}
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Suggester{fields: fieldCatalog, patterns: patternCatalog, scorer: scorer}
}

// Patterns exposes the pattern catalog backing the suggestions.
func (s *Suggester) Patterns() *patterns.Catalog {
	return s.patterns
}

// Suggest builds a report for the entity types named by the query pair.
func (s *Suggester) Suggest(req models.SuggestRequest) (models.SuggestionReport, error) {
	if err := req.Validate(); err != nil {
		return models.SuggestionReport{}, err
	}
	involved := []models.EntityType{req.PrimaryQuery.EntityType}
	for _, q := range req.SecondaryQueries {
		involved = appendEntityType(involved, q.EntityType)
	}

	common := dedupPatterns(s.patterns.ByEntityTypes(involved...))
	sort.SliceStable(common, func(i, j int) bool {
		return common[i].Priority.Rank() < common[j].Priority.Rank()
	})

	return models.SuggestionReport{
		EntityTypesInvolved: involved,
		SharedFields:        s.fields.FieldsSharedBy(involved...),
		Combinations:        s.RecommendedFieldCombinations(involved...),
		CommonPatterns:      common,
	}, nil
}

// RecommendedFieldCombinations ranks candidate combinations for types: fewest
// fields first, then higher compatibility. Field sets are unique regardless of
// order and combinations sharing no field with the types are omitted.
func (s *Suggester) RecommendedFieldCombinations(types ...models.EntityType) []models.FieldCombination {
	shared := make(map[string]struct{})
	for _, f := range s.fields.FieldsSharedBy(types...) {
		shared[f] = struct{}{}
	}

	byKey := make(map[string]*models.FieldCombination)
	add := func(fieldSet []string, useCase string) {
		normalised := normaliseFields(fieldSet)
		key := strings.Join(normalised, ",")
		if existing, ok := byKey[key]; ok {
			existing.UseCases = appendUnique(existing.UseCases, useCase)
			return
		}
		score := s.scorer.Compatibility(normalised, shared)
		if score <= 0 {
			return
		}
		byKey[key] = &models.FieldCombination{
			Fields:             normalised,
			CompatibilityScore: score,
			PerformanceRating:  s.scorer.Performance(normalised),
			UseCases:           appendUnique(nil, useCase),
		}
	}

	for _, p := range s.patterns.ByEntityTypes(types...) {
		if n := len(normaliseFields(p.Fields)); n < 2 || n > 3 {
			continue
		}
		useCase := p.UseCase
		if useCase == "" {
			useCase = p.Name
		}
		add(p.Fields, useCase)
	}
	for _, c := range commonCombinations {
		add(c.fields, c.useCase)
	}

	out := make([]models.FieldCombination, 0, len(byKey))
	for _, combo := range byKey {
		out = append(out, *combo)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Fields) != len(out[j].Fields) {
			return len(out[i].Fields) < len(out[j].Fields)
		}
		if out[i].CompatibilityScore != out[j].CompatibilityScore {
			return out[i].CompatibilityScore > out[j].CompatibilityScore
		}
		return strings.Join(out[i].Fields, ",") < strings.Join(out[j].Fields, ",")
	})
	return out
}

// normaliseFields sorts and de-duplicates a field list.
func normaliseFields(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, f := range list {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func dedupPatterns(list []models.CorrelationPattern) []models.CorrelationPattern {
	seen := make(map[string]struct{}, len(list))
	out := make([]models.CorrelationPattern, 0, len(list))
	for _, p := range list {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, v)
		}
	}
	return list
}
