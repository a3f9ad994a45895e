package engine

import "github.com/miradorstack/firewall-mcp/internal/models"

// ComboScorer rates a candidate field combination for the suggestion engine.
type ComboScorer interface {
	Compatibility(fields []string, shared map[string]struct{}) float64
	Performance(fields []string) models.PerformanceRating
}

// HeuristicScorer is the default ComboScorer. Neither score is calibrated
// against measured query cost: compatibility is the fraction of fields present
// in every entity type involved, and performance is rated purely by field
// count (<=2 high, 3 medium, >=4 low). Callers rely on the resulting order, so
// alternative models belong in a separate ComboScorer.
type HeuristicScorer struct{}

// Compatibility implements ComboScorer.
func (HeuristicScorer) Compatibility(fields []string, shared map[string]struct{}) float64 {
	if len(fields) == 0 {
		return 0
	}
	present := 0
	for _, f := range fields {
		if _, ok := shared[f]; ok {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}

// Performance implements ComboScorer.
func (HeuristicScorer) Performance(fields []string) models.PerformanceRating {
	switch n := len(fields); {
	case n <= 2:
		return models.PerformanceHigh
	case n == 3:
		return models.PerformanceMedium
	default:
		return models.PerformanceLow
	}
}

// commonCombination is an ad-hoc field set offered regardless of the pattern catalog.
type commonCombination struct {
	fields  []string
	useCase string
}

var commonCombinations = []commonCombination{
	{fields: []string{"source_ip", "destination_ip"}, useCase: "Connection-level correlation"},
	{fields: []string{"device_ip", "timestamp"}, useCase: "Device activity timeline"},
	{fields: []string{"device_id", "network_id"}, useCase: "Device inventory by segment"},
	{fields: []string{"domain", "category"}, useCase: "Content classification"},
	{fields: []string{"country", "category"}, useCase: "Regional content mix"},
	{fields: []string{"source_ip", "destination_ip", "protocol"}, useCase: "Connection with protocol"},
	{fields: []string{"device_ip", "severity", "type"}, useCase: "Alarm triage per device"},
	{fields: []string{"source_ip", "destination_ip", "protocol", "direction"}, useCase: "Full connection tuple"},
}
