package models

// Priority ranks correlation patterns for presentation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities high to low; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// CorrelationPattern is a curated field combination known to be useful.
type CorrelationPattern struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Fields      []string     `json:"fields" yaml:"fields" validate:"required,min=1,dive,required"`
	EntityTypes []EntityType `json:"entity_types" yaml:"entity_types" validate:"required,min=1,dive,entity_type"`
	Priority    Priority     `json:"priority" yaml:"priority" validate:"required,oneof=high medium low"`
	UseCase     string       `json:"use_case,omitempty" yaml:"use_case"`
}

// PerformanceRating is a coarse cost hint for a field combination.
type PerformanceRating string

const (
	PerformanceHigh   PerformanceRating = "high"
	PerformanceMedium PerformanceRating = "medium"
	PerformanceLow    PerformanceRating = "low"
)

// FieldCombination is one suggested set of correlation fields.
type FieldCombination struct {
	Fields             []string          `json:"fields"`
	CompatibilityScore float64           `json:"compatibility_score"`
	PerformanceRating  PerformanceRating `json:"performance_rating"`
	UseCases           []string          `json:"use_cases,omitempty"`
}

// SuggestionReport lists field combinations that fit the queried entity types.
type SuggestionReport struct {
	EntityTypesInvolved []EntityType         `json:"entity_types_involved"`
	SharedFields        []string             `json:"shared_fields"`
	Combinations        []FieldCombination   `json:"combinations"`
	CommonPatterns      []CorrelationPattern `json:"common_patterns"`
}

// SuggestRequest asks for field suggestions for a query pair.
type SuggestRequest struct {
	PrimaryQuery     SearchRequest   `json:"primary_query"`
	SecondaryQueries []SearchRequest `json:"secondary_queries" validate:"required,min=1,max=10,dive"`
}
