package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/query"
)

// Options tunes dispatch and result sizing for the Correlator.
type Options struct {
	SearchTimeout      time.Duration
	MaxParallel        int
	DefaultResultLimit int
	MaxResultLimit     int
	MaxClauseValues    int
}

func (o Options) withDefaults() Options {
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 30 * time.Second
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = 4
	}
	if o.MaxResultLimit <= 0 || o.MaxResultLimit > models.MaxSearchLimit {
		o.MaxResultLimit = models.MaxSearchLimit
	}
	if o.DefaultResultLimit <= 0 {
		o.DefaultResultLimit = 100
	}
	if o.DefaultResultLimit > o.MaxResultLimit {
		o.DefaultResultLimit = o.MaxResultLimit
	}
	if o.MaxClauseValues <= 0 {
		o.MaxClauseValues = 50
	}
	return o
}

// Correlator runs cross-entity searches and relates their result sets.
type Correlator struct {
	logger     *slog.Logger
	catalog    *fields.Catalog
	translator *query.Translator
	dispatch   *dispatcher
	opts       Options
}

// NewCorrelator constructs a Correlator. Nil catalog and translator fall back
// to the built-in defaults.
func NewCorrelator(logger *slog.Logger, searcher EntitySearcher, catalog *fields.Catalog, translator *query.Translator, opts Options) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = fields.NewDefaultCatalog()
	}
	if translator == nil {
		translator = query.NewTranslator(0, 0)
	}
	opts = opts.withDefaults()
	return &Correlator{
		logger:     logger,
		catalog:    catalog,
		translator: translator,
		opts:       opts,
		dispatch: &dispatcher{
			logger:      logger,
			searcher:    searcher,
			timeout:     opts.SearchTimeout,
			maxParallel: opts.MaxParallel,
		},
	}
}

// Catalog exposes the field catalog used for resolution.
func (c *Correlator) Catalog() *fields.Catalog {
	return c.catalog
}

func (c *Correlator) job(req models.SearchRequest) (searchJob, error) {
	q, err := c.translator.Build(req)
	if err != nil {
		return searchJob{}, err
	}
	return searchJob{entityType: req.EntityType, query: q, opts: c.translator.Options(req)}, nil
}

func (c *Correlator) resultLimit(requested int) int {
	if requested <= 0 {
		return c.opts.DefaultResultLimit
	}
	if requested > c.opts.MaxResultLimit {
		return c.opts.MaxResultLimit
	}
	return requested
}

// Search runs a single entity search through the same dispatch path as
// correlations. Upstream failures are returned as errors.
func (c *Correlator) Search(ctx context.Context, req models.SearchRequest) (models.SearchResult, string, error) {
	if err := req.ValidateStandalone(); err != nil {
		return models.SearchResult{}, "", err
	}
	job, err := c.job(req)
	if err != nil {
		return models.SearchResult{}, "", err
	}
	out := c.dispatch.run(ctx, job)
	if out.err != nil {
		return models.SearchResult{}, job.query, fmt.Errorf("search %s: %w", req.EntityType, out.err)
	}
	return out.result, job.query, nil
}

// CrossReference runs the primary search, then each secondary search
// constrained to the primary's distinct values of the correlation field, and
// reports the counts side by side. No per-record matching happens here.
func (c *Correlator) CrossReference(ctx context.Context, req models.CrossReferenceRequest) (models.CrossReferenceReport, error) {
	if err := req.Validate(); err != nil {
		return models.CrossReferenceReport{}, err
	}

	primaryJob, err := c.job(req.PrimaryQuery)
	if err != nil {
		return models.CrossReferenceReport{}, err
	}
	secondaryJobs := make([]searchJob, len(req.SecondaryQueries))
	for i, sq := range req.SecondaryQueries {
		if secondaryJobs[i], err = c.job(sq); err != nil {
			return models.CrossReferenceReport{}, err
		}
	}

	pair := parseFieldPairs([]string{req.CorrelationField})[0]
	primaryOut := c.dispatch.run(ctx, primaryJob)
	values := c.distinctValues(req.PrimaryQuery.EntityType, pair.primary, primaryOut.result.Results)

	summary := models.CrossReferenceSummary{
		CorrelationField:      pair.key,
		PrimaryCount:          primaryOut.summary().Count,
		PrimaryDistinctValues: len(values),
		EntityTypesCompared:   []models.EntityType{req.PrimaryQuery.EntityType},
	}
	if primaryOut.err != nil {
		summary.FailedQueries++
	}
	if !c.catalog.Has(req.PrimaryQuery.EntityType, pair.primary) {
		summary.FieldUnavailableFor = append(summary.FieldUnavailableFor, req.PrimaryQuery.EntityType)
	}

	clauseValues := values
	if len(clauseValues) > c.opts.MaxClauseValues {
		clauseValues = clauseValues[:c.opts.MaxClauseValues]
		summary.ClauseValuesTruncated = true
	}
	summary.ClauseValuesUsed = len(clauseValues)

	skipNote := "skipped: primary search returned no correlation values"
	if primaryOut.err != nil {
		skipNote = "skipped: primary search failed"
	}

	correlations := make([]models.QuerySummary, len(secondaryJobs))
	unconstrained := make([]bool, len(secondaryJobs))
	var runnable []searchJob
	var slots []int
	for i := range secondaryJobs {
		et := secondaryJobs[i].entityType
		summary.EntityTypesCompared = appendEntityType(summary.EntityTypesCompared, et)
		path, ok := c.catalog.FieldPath(et, pair.secondary)
		switch {
		case !ok:
			summary.FieldUnavailableFor = appendEntityType(summary.FieldUnavailableFor, et)
			unconstrained[i] = true
		case len(clauseValues) == 0:
			correlations[i] = models.QuerySummary{
				EntityType:       et,
				Query:            secondaryJobs[i].query,
				CorrelationField: pair.key,
				Skipped:          true,
				Note:             skipNote,
			}
			continue
		default:
			secondaryJobs[i].query = query.MergeQuery(secondaryJobs[i].query, query.EqualityClause(path, clauseValues...))
		}
		runnable = append(runnable, secondaryJobs[i])
		slots = append(slots, i)
	}

	for k, out := range c.dispatch.runAll(ctx, runnable) {
		i := slots[k]
		s := out.summary()
		s.CorrelationField = pair.key
		if out.err != nil {
			summary.FailedQueries++
		}
		if unconstrained[i] {
			s.Unconstrained = true
			s.Note = fmt.Sprintf("correlation field %s is not available for %s", pair.secondary, out.job.entityType)
			summary.UnconstrainedSecondaryCount += s.Count
		} else {
			summary.TotalSecondaryCount += s.Count
		}
		correlations[i] = s
	}

	primary := primaryOut.summary()
	primary.CorrelationField = pair.key
	report := models.CrossReferenceReport{
		ID:                 uuid.NewString(),
		Primary:            primary,
		Correlations:       correlations,
		CorrelationSummary: summary,
	}
	c.logger.Debug("cross reference complete",
		slog.String("id", report.ID),
		slog.String("field", pair.key),
		slog.Int("primary_count", summary.PrimaryCount),
		slog.Int("secondary_count", summary.TotalSecondaryCount))
	return report, nil
}

// distinctValues returns the sorted distinct tokens of field across records.
func (c *Correlator) distinctValues(entityType models.EntityType, field string, records []models.Record) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		tokens, ok := c.catalog.Resolve(entityType, field, record)
		if !ok {
			continue
		}
		for _, token := range tokens {
			seen[token] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// EnhancedCrossReference dispatches every search concurrently and scores each
// secondary record against the primary result set.
func (c *Correlator) EnhancedCrossReference(ctx context.Context, req models.EnhancedCrossReferenceRequest) (models.EnhancedCrossReferenceReport, error) {
	if err := req.Validate(); err != nil {
		return models.EnhancedCrossReferenceReport{}, err
	}
	params := req.CorrelationParams
	scope, err := parseNetworkScope(params.NetworkScope)
	if err != nil {
		return models.EnhancedCrossReferenceReport{}, err
	}

	jobs := make([]searchJob, 0, len(req.SecondaryQueries)+1)
	for _, sr := range append([]models.SearchRequest{req.PrimaryQuery}, req.SecondaryQueries...) {
		job, err := c.job(sr)
		if err != nil {
			return models.EnhancedCrossReferenceReport{}, err
		}
		jobs = append(jobs, job)
	}

	outcomes := c.dispatch.runAll(ctx, jobs)
	primaryOut, secondaryOuts := outcomes[0], outcomes[1:]

	pairs := parseFieldPairs(params.CorrelationFields)
	m := &matcher{
		catalog:         c.catalog,
		pairs:           pairs,
		weights:         newFieldWeights(pairs, params.FieldWeights),
		correlationType: params.CorrelationType,
		scope:           scope,
		window:          newTemporalWindow(params.TemporalWindowSeconds),
	}
	m.indexPrimary(req.PrimaryQuery.EntityType, primaryOut.result.Results)

	summary := models.EnhancedSummary{
		CorrelationFields:     append([]string(nil), params.CorrelationFields...),
		CorrelationType:       params.CorrelationType,
		TemporalWindowSeconds: params.TemporalWindowSeconds,
		NetworkScope:          scope.String(),
		PrimaryCount:          len(primaryOut.result.Results),
	}
	if primaryOut.err != nil {
		summary.FailedQueries++
	}

	results := make([]models.CorrelationResult, 0)
	secondaries := make([]models.QuerySummary, 0, len(secondaryOuts))
	for _, out := range secondaryOuts {
		if out.err != nil {
			summary.FailedQueries++
		}
		secondaries = append(secondaries, out.summary())
		for _, record := range out.result.Results {
			summary.CandidatesEvaluated++
			res, verdict := m.evaluate(out.job.entityType, record)
			switch verdict {
			case verdictOutOfScope:
				summary.FilteredByScope++
			case verdictOutOfWindow:
				summary.FilteredByTime++
			case verdictMatched:
				res.Query = out.job.query
				results = append(results, res)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CorrelationStrength != results[j].CorrelationStrength {
			return results[i].CorrelationStrength > results[j].CorrelationStrength
		}
		return results[i].Timestamp > results[j].Timestamp
	})
	summary.Matched = len(results)
	if limit := c.resultLimit(req.Limit); len(results) > limit {
		results = results[:limit]
	}
	summary.Returned = len(results)
	if len(results) > 0 {
		total := 0.0
		for _, r := range results {
			total += r.CorrelationStrength
		}
		summary.AverageStrength = total / float64(len(results))
	}

	report := models.EnhancedCrossReferenceReport{
		ID:          uuid.NewString(),
		Primary:     primaryOut.summary(),
		Secondaries: secondaries,
		Results:     results,
		Summary:     summary,
	}
	c.logger.Debug("enhanced cross reference complete",
		slog.String("id", report.ID),
		slog.Int("candidates", summary.CandidatesEvaluated),
		slog.Int("matched", summary.Matched))
	return report, nil
}

func appendEntityType(list []models.EntityType, et models.EntityType) []models.EntityType {
	for _, existing := range list {
		if existing == et {
			return list
		}
	}
	return append(list, et)
}
