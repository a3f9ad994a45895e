// Package patterns holds the curated library of correlation field combinations.
package patterns

import (
	"sort"
	"sync"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// Catalog is a category-keyed registry of correlation patterns. It only grows:
// updates append to categories and nothing is ever removed.
type Catalog struct {
	mu         sync.RWMutex
	categories map[string][]models.CorrelationPattern
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{categories: make(map[string][]models.CorrelationPattern)}
}

// All returns a copy of every category and its patterns.
func (c *Catalog) All() map[string][]models.CorrelationPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]models.CorrelationPattern, len(c.categories))
	for category, list := range c.categories {
		copied := make([]models.CorrelationPattern, len(list))
		for i, p := range list {
			copied[i] = clonePattern(p)
		}
		out[category] = copied
	}
	return out
}

// Categories returns the sorted category names.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Update appends the incoming patterns to their categories. Duplicates are kept.
// If any pattern is invalid the catalog is left untouched.
func (c *Catalog) Update(partial map[string][]models.CorrelationPattern) error {
	const op = "update correlation patterns"
	for category, list := range partial {
		if category == "" {
			return utils.NewValidationError(op, "category name is required")
		}
		for _, p := range list {
			if err := p.Validate(); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for category, list := range partial {
		for _, p := range list {
			c.categories[category] = append(c.categories[category], clonePattern(p))
		}
	}
	return nil
}

// Len counts patterns across all categories.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, list := range c.categories {
		n += len(list)
	}
	return n
}

// Predicate selects patterns.
type Predicate func(models.CorrelationPattern) bool

// ForEntityTypes matches patterns applying to at least one of the given types.
func ForEntityTypes(types ...models.EntityType) Predicate {
	wanted := make(map[models.EntityType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	return func(p models.CorrelationPattern) bool {
		for _, t := range p.EntityTypes {
			if _, ok := wanted[t]; ok {
				return true
			}
		}
		return false
	}
}

// WithPriority matches patterns with exactly the given priority.
func WithPriority(priority models.Priority) Predicate {
	return func(p models.CorrelationPattern) bool {
		return p.Priority == priority
	}
}

// WithAnyField matches patterns sharing at least one field with the input.
func WithAnyField(fields ...string) Predicate {
	wanted := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		wanted[f] = struct{}{}
	}
	return func(p models.CorrelationPattern) bool {
		for _, f := range p.Fields {
			if _, ok := wanted[f]; ok {
				return true
			}
		}
		return false
	}
}

// Match returns the patterns satisfying every predicate. Each pattern is
// judged on its own, so patterns sharing an ID never stand in for each other.
func (c *Catalog) Match(preds ...Predicate) []models.CorrelationPattern {
	return c.filter(func(p models.CorrelationPattern) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	})
}

// ByEntityTypes returns patterns applying to at least one of the given types.
func (c *Catalog) ByEntityTypes(types ...models.EntityType) []models.CorrelationPattern {
	return c.filter(ForEntityTypes(types...))
}

// ByPriority returns patterns with exactly the given priority.
func (c *Catalog) ByPriority(priority models.Priority) []models.CorrelationPattern {
	return c.filter(WithPriority(priority))
}

// ByFields returns patterns sharing at least one field with the input.
func (c *Catalog) ByFields(fields ...string) []models.CorrelationPattern {
	return c.filter(WithAnyField(fields...))
}

// filter walks categories in name order so results are stable.
func (c *Catalog) filter(keep Predicate) []models.CorrelationPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.CorrelationPattern, 0)
	for _, name := range names {
		for _, p := range c.categories[name] {
			if keep(p) {
				out = append(out, clonePattern(p))
			}
		}
	}
	return out
}

func clonePattern(p models.CorrelationPattern) models.CorrelationPattern {
	p.Fields = append([]string(nil), p.Fields...)
	p.EntityTypes = append([]models.EntityType(nil), p.EntityTypes...)
	return p
}
