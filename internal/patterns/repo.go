package patterns

import (
	"context"

	"github.com/miradorstack/firewall-mcp/internal/models"
)

// Source supplies pattern updates keyed by category.
type Source interface {
	FetchPatterns(ctx context.Context) (map[string][]models.CorrelationPattern, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (map[string][]models.CorrelationPattern, error)

// FetchPatterns implements Source.
func (f SourceFunc) FetchPatterns(ctx context.Context) (map[string][]models.CorrelationPattern, error) {
	return f(ctx)
}

// Refresh pulls patterns from src and appends them to the catalog, returning
// how many were added.
func Refresh(ctx context.Context, c *Catalog, src Source) (int, error) {
	incoming, err := src.FetchPatterns(ctx)
	if err != nil {
		return 0, err
	}
	if len(incoming) == 0 {
		return 0, nil
	}
	if err := c.Update(incoming); err != nil {
		return 0, err
	}
	n := 0
	for _, list := range incoming {
		n += len(list)
	}
	return n, nil
}
