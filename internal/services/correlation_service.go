package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/firewall-mcp/internal/engine"
	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/metrics"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/patterns"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

const latencyLogEvery = 20

// PatternQuery narrows a pattern listing. Empty members do not filter.
type PatternQuery struct {
	EntityTypes []string `json:"entity_types,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

func (q PatternQuery) empty() bool {
	return len(q.EntityTypes) == 0 && strings.TrimSpace(q.Priority) == "" && len(q.Fields) == 0
}

// PatternListing is either the full catalog by category or, when filters were
// given, the flat list of matching patterns.
type PatternListing struct {
	Categories map[string][]models.CorrelationPattern `json:"categories,omitempty"`
	Patterns   []models.CorrelationPattern            `json:"patterns,omitempty"`
	Total      int                                    `json:"total"`
}

// FieldCatalogReport describes the semantic fields of the requested entity types.
type FieldCatalogReport struct {
	Entities     map[models.EntityType][]fields.Info `json:"entities"`
	SharedFields []string                            `json:"shared_fields"`
}

// CorrelationService is the facade shared by the MCP and gRPC transports.
type CorrelationService struct {
	logger     *slog.Logger
	correlator *engine.Correlator
	suggester  *engine.Suggester
	latencies  *utils.LatencyTracker
}

// NewCorrelationService constructs the service facade.
func NewCorrelationService(logger *slog.Logger, correlator *engine.Correlator, suggester *engine.Suggester) *CorrelationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelationService{
		logger:     logger,
		correlator: correlator,
		suggester:  suggester,
		latencies:  utils.NewLatencyTracker(1024),
	}
}

// SearchEntities runs one single-entity search.
func (s *CorrelationService) SearchEntities(ctx context.Context, req models.SearchRequest) (models.EntitySearchResponse, error) {
	if s.correlator == nil {
		return models.EntitySearchResponse{}, errors.New("correlator not configured")
	}
	res, q, err := s.correlator.Search(ctx, req)
	if err != nil {
		if !utils.IsValidation(err) {
			s.logger.Error("entity search failed", slog.String("entity_type", string(req.EntityType)), slog.Any("error", err))
		}
		return models.EntitySearchResponse{}, err
	}
	results := res.Results
	if results == nil {
		results = []models.Record{}
	}
	return models.EntitySearchResponse{
		EntityType: req.EntityType,
		Query:      q,
		Count:      res.Count,
		NextCursor: res.NextCursor,
		Results:    results,
	}, nil
}

// CrossReference runs a basic, count-only cross-reference.
func (s *CorrelationService) CrossReference(ctx context.Context, req models.CrossReferenceRequest) (models.CrossReferenceReport, error) {
	if s.correlator == nil {
		return models.CrossReferenceReport{}, errors.New("correlator not configured")
	}
	start := time.Now()
	report, err := s.correlator.CrossReference(ctx, req)
	s.observe(metrics.ModeBasic, start, err)
	return report, err
}

// EnhancedCrossReference runs a scored, record-level cross-reference.
func (s *CorrelationService) EnhancedCrossReference(ctx context.Context, req models.EnhancedCrossReferenceRequest) (models.EnhancedCrossReferenceReport, error) {
	if s.correlator == nil {
		return models.EnhancedCrossReferenceReport{}, errors.New("correlator not configured")
	}
	start := time.Now()
	report, err := s.correlator.EnhancedCrossReference(ctx, req)
	s.observe(metrics.ModeEnhanced, start, err)
	return report, err
}

// Suggest recommends correlation fields for a query pair without searching.
func (s *CorrelationService) Suggest(_ context.Context, req models.SuggestRequest) (models.SuggestionReport, error) {
	if s.suggester == nil {
		return models.SuggestionReport{}, errors.New("suggester not configured")
	}
	start := time.Now()
	report, err := s.suggester.Suggest(req)
	s.observe(metrics.ModeSuggest, start, err)
	return report, err
}

// RecommendedCombinations lists field combinations for the named entity types.
func (s *CorrelationService) RecommendedCombinations(entityTypes []string) ([]models.FieldCombination, error) {
	const op = "recommended field combinations"
	if s.suggester == nil {
		return nil, errors.New("suggester not configured")
	}
	if len(entityTypes) == 0 {
		return nil, utils.NewValidationError(op, "entity_types must name at least one entity type")
	}
	types, err := parseEntityTypes(op, entityTypes)
	if err != nil {
		return nil, err
	}
	return s.suggester.RecommendedFieldCombinations(types...), nil
}

// ListPatterns returns the pattern catalog, optionally filtered. Filters
// combine conjunctively.
func (s *CorrelationService) ListPatterns(q PatternQuery) (PatternListing, error) {
	const op = "list correlation patterns"
	catalog := s.patterns()
	if catalog == nil {
		return PatternListing{}, errors.New("pattern catalog not configured")
	}
	if q.empty() {
		all := catalog.All()
		total := 0
		for _, list := range all {
			total += len(list)
		}
		return PatternListing{Categories: all, Total: total}, nil
	}

	var preds []patterns.Predicate
	if len(q.EntityTypes) > 0 {
		types, err := parseEntityTypes(op, q.EntityTypes)
		if err != nil {
			return PatternListing{}, err
		}
		preds = append(preds, patterns.ForEntityTypes(types...))
	}
	if p := strings.ToLower(strings.TrimSpace(q.Priority)); p != "" {
		priority := models.Priority(p)
		if priority.Rank() > models.PriorityLow.Rank() {
			return PatternListing{}, utils.NewValidationError(op, fmt.Sprintf("priority %q must be high, medium or low", q.Priority))
		}
		preds = append(preds, patterns.WithPriority(priority))
	}
	if len(q.Fields) > 0 {
		preds = append(preds, patterns.WithAnyField(q.Fields...))
	}

	matched := catalog.Match(preds...)
	return PatternListing{Patterns: matched, Total: len(matched)}, nil
}

// UpdatePatterns appends patterns to the catalog and returns how many were added.
func (s *CorrelationService) UpdatePatterns(ctx context.Context, partial map[string][]models.CorrelationPattern) (int, error) {
	catalog := s.patterns()
	if catalog == nil {
		return 0, errors.New("pattern catalog not configured")
	}
	if len(partial) == 0 {
		return 0, utils.NewValidationError("update correlation patterns", "patterns must contain at least one category")
	}
	added, err := patterns.Refresh(ctx, catalog, patterns.SourceFunc(func(context.Context) (map[string][]models.CorrelationPattern, error) {
		return partial, nil
	}))
	if err != nil {
		return 0, err
	}
	s.logger.Info("correlation patterns updated", slog.Int("added", added), slog.Int("total", catalog.Len()))
	return added, nil
}

// FieldCatalog describes the semantic fields of the given entity types, or of
// every entity type when none are named.
func (s *CorrelationService) FieldCatalog(entityTypes []string) (FieldCatalogReport, error) {
	if s.correlator == nil {
		return FieldCatalogReport{}, errors.New("correlator not configured")
	}
	types := models.AllEntityTypes()
	if len(entityTypes) > 0 {
		var err error
		if types, err = parseEntityTypes("field catalog", entityTypes); err != nil {
			return FieldCatalogReport{}, err
		}
	}
	catalog := s.correlator.Catalog()
	report := FieldCatalogReport{Entities: make(map[models.EntityType][]fields.Info, len(types))}
	for _, et := range types {
		report.Entities[et] = catalog.Describe(et)
	}
	report.SharedFields = catalog.FieldsSharedBy(types...)
	return report, nil
}

// LatencyP95 returns the recent p95 latency for a correlation mode.
func (s *CorrelationService) LatencyP95(mode string) time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(mode, 95)
}

func (s *CorrelationService) patterns() *patterns.Catalog {
	if s.suggester == nil {
		return nil
	}
	return s.suggester.Patterns()
}

func (s *CorrelationService) observe(mode string, start time.Time, err error) {
	duration := time.Since(start)
	switch {
	case err == nil:
		metrics.ObserveCorrelation(mode, duration, metrics.OutcomeSuccess)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.ObserveCorrelation(mode, duration, metrics.OutcomeTimeout)
	default:
		metrics.ObserveCorrelation(mode, duration, metrics.OutcomeError)
	}
	if err != nil {
		if !utils.IsValidation(err) {
			s.logger.Error("correlation failed", slog.String("mode", mode), slog.Any("error", err))
		}
		return
	}

	s.latencies.Observe(mode, duration)
	if count := s.latencies.Count(mode); count >= latencyLogEvery && count%latencyLogEvery == 0 {
		s.logger.Info("correlation latency",
			slog.String("mode", mode),
			slog.Duration("p95", s.latencies.Percentile(mode, 95)),
			slog.Int("samples", count))
	}
}

func parseEntityTypes(op string, values []string) ([]models.EntityType, error) {
	types := make([]models.EntityType, 0, len(values))
	for _, v := range values {
		et, err := models.ParseEntityType(v)
		if err != nil {
			return nil, utils.NewValidationError(op, err.Error())
		}
		types = append(types, et)
	}
	return types, nil
}
