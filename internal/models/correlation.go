package models

import "strings"

// CorrelationType controls how multiple correlation fields combine.
type CorrelationType string

const (
	CorrelationAND CorrelationType = "AND"
	CorrelationOR  CorrelationType = "OR"
)

// FieldPairSeparator joins a primary and a secondary field name in a single
// correlation field entry, e.g. "source_ip~device_ip".
const FieldPairSeparator = "~"

// SplitFieldPair returns the primary and secondary semantic field names of a
// correlation field entry. Plain entries resolve to the same name on both sides.
func SplitFieldPair(entry string) (primary, secondary string) {
	entry = strings.TrimSpace(entry)
	if left, right, ok := strings.Cut(entry, FieldPairSeparator); ok {
		return strings.TrimSpace(left), strings.TrimSpace(right)
	}
	return entry, entry
}

// CorrelationParams configures enhanced cross-reference scoring.
type CorrelationParams struct {
	CorrelationFields     []string           `json:"correlation_fields" validate:"required,min=1,max=10,dive,required"`
	CorrelationType       CorrelationType    `json:"correlation_type" validate:"required,oneof=AND OR"`
	TemporalWindowSeconds *int               `json:"temporal_window_seconds,omitempty" validate:"omitempty,gte=0"`
	NetworkScope          string             `json:"network_scope,omitempty"`
	FieldWeights          map[string]float64 `json:"field_weights,omitempty"`
}

// CrossReferenceRequest is the basic, count-only cross-reference request.
type CrossReferenceRequest struct {
	PrimaryQuery     SearchRequest   `json:"primary_query"`
	SecondaryQueries []SearchRequest `json:"secondary_queries" validate:"required,min=1,max=10,dive"`
	CorrelationField string          `json:"correlation_field" validate:"required"`
	Limit            int             `json:"limit,omitempty" validate:"gte=0,lte=10000"`
}

// EnhancedCrossReferenceRequest correlates secondary records against the primary set.
type EnhancedCrossReferenceRequest struct {
	PrimaryQuery      SearchRequest     `json:"primary_query"`
	SecondaryQueries  []SearchRequest   `json:"secondary_queries" validate:"required,min=1,max=10,dive"`
	CorrelationParams CorrelationParams `json:"correlation_params"`
	Limit             int               `json:"limit,omitempty" validate:"gte=0,lte=10000"`
}

// QuerySummary reports what a single dispatched search returned.
type QuerySummary struct {
	EntityType       EntityType `json:"entity_type"`
	Query            string     `json:"query"`
	Count            int        `json:"count"`
	CorrelationField string     `json:"correlation_field,omitempty"`
	Error            string     `json:"error,omitempty"`
	// Unconstrained marks a secondary search that ran without the primary's
	// correlation values; its count is not a correlated count.
	Unconstrained bool   `json:"unconstrained,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Note          string `json:"note,omitempty"`
}

// CrossReferenceSummary aggregates a basic cross-reference run.
// TotalSecondaryCount sums constrained secondaries only.
type CrossReferenceSummary struct {
	CorrelationField            string       `json:"correlation_field"`
	PrimaryCount                int          `json:"primary_count"`
	PrimaryDistinctValues       int          `json:"primary_distinct_values"`
	ClauseValuesUsed            int          `json:"clause_values_used"`
	ClauseValuesTruncated       bool         `json:"clause_values_truncated,omitempty"`
	TotalSecondaryCount         int          `json:"total_secondary_count"`
	UnconstrainedSecondaryCount int          `json:"unconstrained_secondary_count,omitempty"`
	FailedQueries               int          `json:"failed_queries"`
	FieldUnavailableFor         []EntityType `json:"field_unavailable_for,omitempty"`
	EntityTypesCompared         []EntityType `json:"entity_types_compared"`
}

// CrossReferenceReport is the basic cross-reference response.
type CrossReferenceReport struct {
	ID                 string                `json:"id"`
	Primary            QuerySummary          `json:"primary"`
	Correlations       []QuerySummary        `json:"correlations"`
	CorrelationSummary CrossReferenceSummary `json:"correlation_summary"`
}

// CorrelationResult is one secondary record that matched the primary set.
type CorrelationResult struct {
	EntityType          EntityType `json:"entity_type"`
	Query               string     `json:"query"`
	MatchedFields       []string   `json:"matched_fields"`
	CorrelationStrength float64    `json:"correlation_strength"`
	Timestamp           int64      `json:"timestamp,omitempty"`
	Data                Record     `json:"data"`
}

// EnhancedSummary explains how many candidates survived each stage.
type EnhancedSummary struct {
	CorrelationFields     []string        `json:"correlation_fields"`
	CorrelationType       CorrelationType `json:"correlation_type"`
	TemporalWindowSeconds *int            `json:"temporal_window_seconds,omitempty"`
	NetworkScope          string          `json:"network_scope,omitempty"`
	PrimaryCount          int             `json:"primary_count"`
	CandidatesEvaluated   int             `json:"candidates_evaluated"`
	FilteredByScope       int             `json:"filtered_by_scope"`
	FilteredByTime        int             `json:"filtered_by_time"`
	Matched               int             `json:"matched"`
	Returned              int             `json:"returned"`
	AverageStrength       float64         `json:"average_strength"`
	FailedQueries         int             `json:"failed_queries"`
}

// EnhancedCrossReferenceReport is the enhanced cross-reference response.
type EnhancedCrossReferenceReport struct {
	ID          string              `json:"id"`
	Primary     QuerySummary        `json:"primary"`
	Secondaries []QuerySummary      `json:"secondaries"`
	Results     []CorrelationResult `json:"results"`
	Summary     EnhancedSummary     `json:"summary"`
}
