package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/repo"
	"github.com/miradorstack/firewall-mcp/internal/services"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// Backend is the service facade the tools delegate to.
type Backend interface {
	SearchEntities(ctx context.Context, req models.SearchRequest) (models.EntitySearchResponse, error)
	CrossReference(ctx context.Context, req models.CrossReferenceRequest) (models.CrossReferenceReport, error)
	EnhancedCrossReference(ctx context.Context, req models.EnhancedCrossReferenceRequest) (models.EnhancedCrossReferenceReport, error)
	Suggest(ctx context.Context, req models.SuggestRequest) (models.SuggestionReport, error)
	RecommendedCombinations(entityTypes []string) ([]models.FieldCombination, error)
	ListPatterns(q services.PatternQuery) (services.PatternListing, error)
	UpdatePatterns(ctx context.Context, partial map[string][]models.CorrelationPattern) (int, error)
	FieldCatalog(entityTypes []string) (services.FieldCatalogReport, error)
}

// RuleController changes the state of firewall rules.
type RuleController interface {
	SetRuleState(ctx context.Context, ruleID string, action repo.RuleAction) (repo.RuleActionResult, error)
}

var searchTools = []struct {
	name       string
	entityType models.EntityType
	noun       string
	example    string
}{
	{"search_flows", models.EntityFlows, "network flows", "protocol:tcp AND blocked:true"},
	{"search_alarms", models.EntityAlarms, "security alarms", "severity:high AND type:intrusion"},
	{"search_devices", models.EntityDevices, "devices", "online:true AND macVendor:Apple"},
	{"search_rules", models.EntityRules, "firewall rules", "action:block AND status:active"},
	{"search_target_lists", models.EntityTargetLists, "target lists", "category:ad"},
}

// RegisterTools registers every correlation and search tool. Rule control
// tools are registered only when rules is non-nil.
func RegisterTools(reg *Registry, backend Backend, rules RuleController) error {
	if backend == nil {
		return errors.New("tool backend is required")
	}
	var errs []error
	for _, st := range searchTools {
		errs = append(errs, reg.Register(searchTool(backend, st.name, st.entityType, st.noun, st.example)))
	}
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name: "search_cross_reference",
			Description: `Run a primary search, then constrain each secondary search to the primary's values of one correlation field.

Returns: JSON with the primary query summary, one summary per secondary query (query, entity_type, count, error) and a correlation_summary. Counts only; records are not matched individually.

Use when: you want a quick "how many alarms relate to these flows" answer.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"primary_query":     searchRequestProperty("The primary search"),
					"secondary_queries": {Type: "array", Description: "1 to 10 secondary searches", Items: ptr(searchRequestProperty("A secondary search"))},
					"correlation_field": {Type: "string", Description: "Semantic field to correlate on (e.g. source_ip), or primary~secondary to pair different fields"},
					"limit":             limitProperty("Optional result limit"),
				},
				Required: []string{"primary_query", "secondary_queries", "correlation_field"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var req models.CrossReferenceRequest
			if err := decodeArgs("search_cross_reference", args, &req); err != nil {
				return CallToolResult{}, err
			}
			report, err := backend.CrossReference(ctx, req)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(report), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name: "search_enhanced_cross_reference",
			Description: `Correlate secondary records against the primary result set on one or more fields, with optional temporal window, network scope and field weights.

Returns: JSON with per-query summaries, scored results (entity_type, matched_fields, correlation_strength in [0,1], timestamp, data) sorted strongest first, and a summary of how many candidates were filtered by scope and time.

Use when: you need record-level evidence that entities are related.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"primary_query":     searchRequestProperty("The primary search"),
					"secondary_queries": {Type: "array", Description: "1 to 10 secondary searches", Items: ptr(searchRequestProperty("A secondary search"))},
					"correlation_params": {
						Type:        "object",
						Description: "How secondary records are matched and scored",
						Properties: map[string]PropertySchema{
							"correlation_fields":      {Type: "array", Description: "1 to 10 semantic fields; use primary~secondary to pair different fields", Items: &PropertySchema{Type: "string"}},
							"correlation_type":        {Type: "string", Description: "AND requires every field to match, OR at least one", Enum: []string{"AND", "OR"}},
							"temporal_window_seconds": {Type: "integer", Description: "Only primaries within this many seconds of the secondary are considered", Minimum: ptr(0.0)},
							"network_scope":           {Type: "string", Description: "CIDR or single IP the secondary record must fall in"},
							"field_weights":           {Type: "object", Description: "Weight in [0,1] per correlation field", AdditionalProperties: &PropertySchema{Type: "number"}},
						},
						Required: []string{"correlation_fields", "correlation_type"},
					},
					"limit": limitProperty("Maximum number of correlated results to return"),
				},
				Required: []string{"primary_query", "secondary_queries", "correlation_params"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var req models.EnhancedCrossReferenceRequest
			if err := decodeArgs("search_enhanced_cross_reference", args, &req); err != nil {
				return CallToolResult{}, err
			}
			report, err := backend.EnhancedCrossReference(ctx, req)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(report), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name:        "get_correlation_suggestions",
			Description: "Suggest correlation field combinations and known patterns for a primary/secondary query set without running any search.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"primary_query":     searchRequestProperty("The primary search"),
					"secondary_queries": {Type: "array", Description: "1 to 10 secondary searches", Items: ptr(searchRequestProperty("A secondary search"))},
				},
				Required: []string{"primary_query", "secondary_queries"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var req models.SuggestRequest
			if err := decodeArgs("get_correlation_suggestions", args, &req); err != nil {
				return CallToolResult{}, err
			}
			report, err := backend.Suggest(ctx, req)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(report), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name:        "get_recommended_field_combinations",
			Description: "List field combinations that work across the given entity types, smallest first, with compatibility and performance hints.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"entity_types": entityTypesProperty("Entity types to combine"),
				},
				Required: []string{"entity_types"},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (CallToolResult, error) {
			var in struct {
				EntityTypes []string `json:"entity_types"`
			}
			if err := decodeArgs("get_recommended_field_combinations", args, &in); err != nil {
				return CallToolResult{}, err
			}
			combos, err := backend.RecommendedCombinations(in.EntityTypes)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(map[string]any{"entity_types": in.EntityTypes, "combinations": combos}), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name:        "get_correlation_patterns",
			Description: "List curated correlation patterns. Without filters the whole catalog is returned by category; filters combine with AND.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"entity_types": entityTypesProperty("Keep patterns involving any of these entity types"),
					"priority":     {Type: "string", Description: "Keep patterns with this priority", Enum: []string{"high", "medium", "low"}},
					"fields":       {Type: "array", Description: "Keep patterns using any of these fields", Items: &PropertySchema{Type: "string"}},
				},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (CallToolResult, error) {
			var q services.PatternQuery
			if err := decodeArgs("get_correlation_patterns", args, &q); err != nil {
				return CallToolResult{}, err
			}
			listing, err := backend.ListPatterns(q)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(listing), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name:        "update_correlation_patterns",
			Description: "Append correlation patterns to the catalog, keyed by category. Existing patterns are kept; nothing is deduplicated.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"patterns": {
						Type:                 "object",
						Description:          "Map of category name to a list of patterns {id, name, description, fields, entity_types, priority, use_case}",
						AdditionalProperties: &PropertySchema{Type: "array", Items: &PropertySchema{Type: "object"}},
					},
				},
				Required: []string{"patterns"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var in struct {
				Patterns map[string][]models.CorrelationPattern `json:"patterns"`
			}
			if err := decodeArgs("update_correlation_patterns", args, &in); err != nil {
				return CallToolResult{}, err
			}
			added, err := backend.UpdatePatterns(ctx, in.Patterns)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(map[string]any{"success": true, "added": added}), nil
		},
	}))
	errs = append(errs, reg.Register(RegisteredTool{
		Definition: Tool{
			Name:        "get_field_catalog",
			Description: "Describe the semantic fields available per entity type (path and kind), plus the fields shared by all requested types.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"entity_types": entityTypesProperty("Entity types to describe; all when omitted"),
				},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (CallToolResult, error) {
			var in struct {
				EntityTypes []string `json:"entity_types"`
			}
			if err := decodeArgs("get_field_catalog", args, &in); err != nil {
				return CallToolResult{}, err
			}
			report, err := backend.FieldCatalog(in.EntityTypes)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(report), nil
		},
	}))

	if rules != nil {
		errs = append(errs, reg.Register(ruleTool(rules, "pause_rule", repo.RulePause)))
		errs = append(errs, reg.Register(ruleTool(rules, "resume_rule", repo.RuleResume)))
	}
	return errors.Join(errs...)
}

func searchTool(backend Backend, name string, entityType models.EntityType, noun, example string) RegisteredTool {
	return RegisteredTool{
		Definition: Tool{
			Name: name,
			Description: fmt.Sprintf(`Search %s with the firewall query syntax.

Returns: JSON with entity_type, the final query sent upstream, count, next_cursor and results.

Example query: %s`, noun, example),
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"query":      {Type: "string", Description: "Search query (field:value terms joined with AND/OR)"},
					"limit":      limitProperty("Page size, 1 to 10000"),
					"cursor":     {Type: "string", Description: "Cursor from a previous page"},
					"sort_by":    {Type: "string", Description: "Sort expression, e.g. ts:desc"},
					"time_range": timeRangeProperty(),
					"filters":    {Type: "object", Description: "Extra field:value equality filters", AdditionalProperties: &PropertySchema{Type: "string"}},
				},
				Required: []string{"query", "limit"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var in struct {
				Query     *string                `json:"query"`
				Limit     *int                   `json:"limit"`
				Cursor    string                 `json:"cursor"`
				SortBy    string                 `json:"sort_by"`
				TimeRange *models.TimeRangeInput `json:"time_range"`
				Filters   map[string]string      `json:"filters"`
			}
			if err := decodeArgs(name, args, &in); err != nil {
				return CallToolResult{}, err
			}
			if in.Query == nil || strings.TrimSpace(*in.Query) == "" {
				return CallToolResult{}, utils.NewValidationError(name, "query parameter is required and must not be empty")
			}
			if in.Limit == nil {
				return CallToolResult{}, utils.NewValidationError(name, "limit parameter is required")
			}
			resp, err := backend.SearchEntities(ctx, models.SearchRequest{
				EntityType: entityType,
				Query:      *in.Query,
				Limit:      *in.Limit,
				Cursor:     in.Cursor,
				SortBy:     in.SortBy,
				TimeRange:  in.TimeRange,
				Filters:    in.Filters,
			})
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(resp), nil
		},
	}
}

func ruleTool(rules RuleController, name string, action repo.RuleAction) RegisteredTool {
	return RegisteredTool{
		Definition: Tool{
			Name:        name,
			Description: fmt.Sprintf("%s a firewall rule by ID.", strings.ToUpper(string(action[:1]))+string(action[1:])),
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"rule_id": {Type: "string", Description: "Rule identifier"},
				},
				Required: []string{"rule_id"},
			},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
			var in struct {
				RuleID string `json:"rule_id"`
			}
			if err := decodeArgs(name, args, &in); err != nil {
				return CallToolResult{}, err
			}
			if strings.TrimSpace(in.RuleID) == "" {
				return CallToolResult{}, utils.NewValidationError(name, "rule_id parameter is required")
			}
			res, err := rules.SetRuleState(ctx, in.RuleID, action)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(res), nil
		},
	}
}

// decodeArgs unmarshals tool arguments. Unknown keys are ignored; type
// mismatches are validation errors.
func decodeArgs(op string, raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return utils.NewValidationError(op, fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func limitProperty(desc string) PropertySchema {
	return PropertySchema{Type: "integer", Description: desc, Minimum: ptr(1.0), Maximum: ptr(float64(models.MaxSearchLimit))}
}

func entityTypesProperty(desc string) PropertySchema {
	return PropertySchema{Type: "array", Description: desc, Items: &PropertySchema{Type: "string", Enum: entityTypeNames()}}
}

func timeRangeProperty() PropertySchema {
	return PropertySchema{
		Type:        "object",
		Description: "ISO-8601 time bounds",
		Properties: map[string]PropertySchema{
			"start": {Type: "string", Description: "Start time, e.g. 2024-03-01T10:00:00Z"},
			"end":   {Type: "string", Description: "End time"},
		},
		Required: []string{"start", "end"},
	}
}

func searchRequestProperty(desc string) PropertySchema {
	return PropertySchema{
		Type:        "object",
		Description: desc,
		Properties: map[string]PropertySchema{
			"entity_type": {Type: "string", Enum: entityTypeNames()},
			"query":       {Type: "string", Description: "Search query"},
			"limit":       limitProperty("Fetch size for this search"),
			"cursor":      {Type: "string"},
			"sort_by":     {Type: "string"},
			"time_range":  timeRangeProperty(),
			"filters":     {Type: "object", AdditionalProperties: &PropertySchema{Type: "string"}},
		},
		Required: []string{"entity_type", "query"},
	}
}

func entityTypeNames() []string {
	types := models.AllEntityTypes()
	names := make([]string, 0, len(types))
	for _, et := range types {
		names = append(names, string(et))
	}
	return names
}
