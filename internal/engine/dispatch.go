package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/firewall-mcp/internal/metrics"
	"github.com/miradorstack/firewall-mcp/internal/models"
)

// EntitySearcher is the single-entity search primitive the engine consumes.
type EntitySearcher interface {
	SearchEntities(ctx context.Context, entityType models.EntityType, query string, opts models.SearchOptions) (models.SearchResult, error)
}

// EntitySearcherFunc adapts a function to EntitySearcher.
type EntitySearcherFunc func(ctx context.Context, entityType models.EntityType, query string, opts models.SearchOptions) (models.SearchResult, error)

// SearchEntities implements EntitySearcher.
func (f EntitySearcherFunc) SearchEntities(ctx context.Context, entityType models.EntityType, query string, opts models.SearchOptions) (models.SearchResult, error) {
	return f(ctx, entityType, query, opts)
}

// searchJob is one search to dispatch; query is already translated.
type searchJob struct {
	entityType models.EntityType
	query      string
	opts       models.SearchOptions
}

// searchOutcome is the settled result of one job. Err is set on failure,
// timeout or panic, in which case Result is empty.
type searchOutcome struct {
	job    searchJob
	result models.SearchResult
	err    error
}

func (o searchOutcome) summary() models.QuerySummary {
	s := models.QuerySummary{EntityType: o.job.entityType, Query: o.job.query, Count: o.result.Count}
	if o.err != nil {
		s.Count = 0
		s.Error = o.err.Error()
	}
	return s
}

type dispatcher struct {
	logger      *slog.Logger
	searcher    EntitySearcher
	timeout     time.Duration
	maxParallel int
}

// runAll fires every job with bounded parallelism and waits for all of them.
// Failures never cancel sibling searches.
func (d *dispatcher) runAll(ctx context.Context, jobs []searchJob) []searchOutcome {
	outcomes := make([]searchOutcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = d.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type searchReply struct {
	result models.SearchResult
	err    error
}

func (d *dispatcher) run(ctx context.Context, job searchJob) searchOutcome {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	replies := make(chan searchReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- searchReply{err: fmt.Errorf("%s search panicked: %v", job.entityType, r)}
			}
		}()
		res, err := d.searcher.SearchEntities(callCtx, job.entityType, job.query, job.opts)
		replies <- searchReply{result: res, err: err}
	}()

	out := searchOutcome{job: job}
	outcome := metrics.OutcomeSuccess
	select {
	case reply := <-replies:
		out.result, out.err = reply.result, reply.err
		if out.err != nil {
			outcome = metrics.OutcomeError
			if errors.Is(out.err, context.DeadlineExceeded) {
				outcome = metrics.OutcomeTimeout
			}
		}
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
			out.err = fmt.Errorf("%s search timed out after %s", job.entityType, d.timeout)
		} else {
			outcome = metrics.OutcomeError
			out.err = fmt.Errorf("%s search cancelled: %w", job.entityType, callCtx.Err())
		}
	}

	if out.err != nil {
		out.result = models.SearchResult{}
		d.logger.Warn("entity search failed",
			slog.String("entity_type", string(job.entityType)),
			slog.String("query", job.query),
			slog.Any("error", out.err))
	} else if out.result.Count < len(out.result.Results) {
		out.result.Count = len(out.result.Results)
	}
	metrics.ObserveEntitySearch(string(job.entityType), time.Since(start), outcome)
	return out
}
