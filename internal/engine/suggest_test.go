package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/patterns"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

func TestRecommendedCombinationsSortedAndUnique(t *testing.T) {
	s := NewSuggester(nil, nil, nil)
	combos := s.RecommendedFieldCombinations(models.EntityFlows, models.EntityAlarms)
	require.NotEmpty(t, combos)

	seen := make(map[string]struct{})
	for i, combo := range combos {
		key := strings.Join(combo.Fields, ",")
		_, dup := seen[key]
		assert.False(t, dup, "duplicate field set %s", key)
		seen[key] = struct{}{}

		assert.IsIncreasing(t, combo.Fields)
		assert.Greater(t, combo.CompatibilityScore, 0.0)
		assert.LessOrEqual(t, combo.CompatibilityScore, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, len(combos[i-1].Fields), len(combo.Fields))
		}
	}
}

func TestRecommendedCombinationsMergeUseCases(t *testing.T) {
	s := NewSuggester(nil, nil, nil)
	combos := s.RecommendedFieldCombinations(models.EntityFlows, models.EntityAlarms)

	var tuple *models.FieldCombination
	for i := range combos {
		if strings.Join(combos[i].Fields, ",") == "destination_ip,protocol,source_ip" {
			tuple = &combos[i]
		}
	}
	require.NotNil(t, tuple)
	// pattern network_flow_security and the common table share this set
	assert.Len(t, tuple.UseCases, 2)
	assert.Equal(t, models.PerformanceMedium, tuple.PerformanceRating)
	// alarms carry no protocol
	assert.InDelta(t, 2.0/3.0, tuple.CompatibilityScore, 1e-9)
}

func TestHeuristicScorer(t *testing.T) {
	var h HeuristicScorer
	assert.Equal(t, models.PerformanceHigh, h.Performance([]string{"a"}))
	assert.Equal(t, models.PerformanceHigh, h.Performance([]string{"a", "b"}))
	assert.Equal(t, models.PerformanceMedium, h.Performance([]string{"a", "b", "c"}))
	assert.Equal(t, models.PerformanceLow, h.Performance([]string{"a", "b", "c", "d"}))

	shared := map[string]struct{}{"a": {}, "b": {}}
	assert.Equal(t, 1.0, h.Compatibility([]string{"a", "b"}, shared))
	assert.Equal(t, 0.5, h.Compatibility([]string{"a", "z"}, shared))
	assert.Equal(t, 0.0, h.Compatibility(nil, shared))
}

type constantScorer struct{}

func (constantScorer) Compatibility([]string, map[string]struct{}) float64 { return 0.42 }
func (constantScorer) Performance([]string) models.PerformanceRating { return models.PerformanceLow }

func TestSuggesterUsesInjectedScorer(t *testing.T) {
	s := NewSuggester(nil, patterns.NewCatalog(), constantScorer{})
	combos := s.RecommendedFieldCombinations(models.EntityDevices)
	require.NotEmpty(t, combos)
	for _, combo := range combos {
		assert.Equal(t, 0.42, combo.CompatibilityScore)
		assert.Equal(t, models.PerformanceLow, combo.PerformanceRating)
	}
}

func TestSuggest(t *testing.T) {
	s := NewSuggester(nil, nil, nil)
	report, err := s.Suggest(models.SuggestRequest{
		PrimaryQuery: models.SearchRequest{EntityType: models.EntityFlows, Query: "region:US"},
		SecondaryQueries: []models.SearchRequest{
			{EntityType: models.EntityAlarms, Query: "severity:high"},
			{EntityType: models.EntityAlarms, Query: "type:8"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []models.EntityType{models.EntityFlows, models.EntityAlarms}, report.EntityTypesInvolved)
	assert.Contains(t, report.SharedFields, "source_ip")
	assert.NotContains(t, report.SharedFields, "protocol")
	require.NotEmpty(t, report.CommonPatterns)
	for i := 1; i < len(report.CommonPatterns); i++ {
		assert.LessOrEqual(t, report.CommonPatterns[i-1].Priority.Rank(), report.CommonPatterns[i].Priority.Rank())
	}
	assert.Equal(t, s.RecommendedFieldCombinations(models.EntityFlows, models.EntityAlarms), report.Combinations)
}

func TestSuggestDedupsPatternsAppendedTwice(t *testing.T) {
	catalog := patterns.NewDefaultCatalog()
	require.NoError(t, catalog.Update(map[string][]models.CorrelationPattern{
		"network": catalog.All()["network"],
	}))
	s := NewSuggester(nil, catalog, nil)

	report, err := s.Suggest(models.SuggestRequest{
		PrimaryQuery:     models.SearchRequest{EntityType: models.EntityFlows, Query: "x"},
		SecondaryQueries: []models.SearchRequest{{EntityType: models.EntityAlarms, Query: "y"}},
	})
	require.NoError(t, err)
	seen := make(map[string]struct{})
	for _, p := range report.CommonPatterns {
		_, dup := seen[p.ID]
		assert.False(t, dup, p.ID)
		seen[p.ID] = struct{}{}
	}
}

func TestSuggestValidation(t *testing.T) {
	s := NewSuggester(nil, nil, nil)
	_, err := s.Suggest(models.SuggestRequest{
		PrimaryQuery: models.SearchRequest{EntityType: models.EntityFlows, Query: "x"},
	})
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
}
