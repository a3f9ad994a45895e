// Package query builds firewall search query strings from structured requests.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

const (
	defaultFetchLimit = 500
	maxFetchLimit     = models.MaxSearchLimit
)

// MergeQuery ANDs addition onto base while preserving base's operator precedence.
func MergeQuery(base, addition string) string {
	base = strings.TrimSpace(base)
	addition = strings.TrimSpace(addition)
	switch {
	case base == "":
		return addition
	case addition == "":
		return base
	default:
		return "(" + base + ") AND " + addition
	}
}

// ParseTimeRange converts ISO-8601 bounds into a TimeRange.
func ParseTimeRange(start, end string) (models.TimeRange, error) {
	const op = "parse time range"
	from, err := utils.ParseRFC3339(start)
	if err != nil {
		return models.TimeRange{}, utils.NewValidationError(op, fmt.Sprintf("start: %v", err))
	}
	to, err := utils.ParseRFC3339(end)
	if err != nil {
		return models.TimeRange{}, utils.NewValidationError(op, fmt.Sprintf("end: %v", err))
	}
	if to.Before(from) {
		return models.TimeRange{}, utils.NewValidationError(op, "end must not precede start")
	}
	return models.TimeRange{Start: from, End: to}, nil
}

// TimeRangeClause renders tr as "ts:<start>-<end>" in Unix seconds.
func TimeRangeClause(tr models.TimeRange) string {
	return fmt.Sprintf("ts:%d-%d", tr.Start.Unix(), tr.End.Unix())
}

// EqualityClause renders path:value, or path:(v1 OR v2) for several values.
// Empty values are skipped; no values yields an empty clause.
func EqualityClause(path string, values ...string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		quoted = append(quoted, Quote(v))
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return path + ":" + quoted[0]
	default:
		return path + ":(" + strings.Join(quoted, " OR ") + ")"
	}
}

// Quote wraps value in double quotes when it contains whitespace or query syntax.
func Quote(value string) string {
	if !strings.ContainsAny(value, " \t\n:()\"") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}

// Translator turns SearchRequests into query strings and fetch sizes.
type Translator struct {
	defaultLimit int
	maxLimit     int
}

// NewTranslator returns a translator; non-positive limits fall back to defaults
// and maxLimit never exceeds the API maximum.
func NewTranslator(defaultLimit, maxLimit int) *Translator {
	if maxLimit <= 0 || maxLimit > maxFetchLimit {
		maxLimit = maxFetchLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = defaultFetchLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Translator{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Build merges the free-text query, structured filters (by key order) and the
// optional time range into a single query string.
func (t *Translator) Build(req models.SearchRequest) (string, error) {
	q := strings.TrimSpace(req.Query)

	keys := make([]string, 0, len(req.Filters))
	for k := range req.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q = MergeQuery(q, EqualityClause(k, req.Filters[k]))
	}

	if req.TimeRange != nil {
		tr, err := ParseTimeRange(req.TimeRange.Start, req.TimeRange.End)
		if err != nil {
			return "", err
		}
		q = MergeQuery(q, TimeRangeClause(tr))
	}
	return q, nil
}

// FetchLimit returns the page size to request upstream.
func (t *Translator) FetchLimit(requested int) int {
	if requested <= 0 {
		return t.defaultLimit
	}
	if requested > t.maxLimit {
		return t.maxLimit
	}
	return requested
}

// Options builds the search options for req.
func (t *Translator) Options(req models.SearchRequest) models.SearchOptions {
	return models.SearchOptions{
		Limit:  t.FetchLimit(req.Limit),
		Cursor: req.Cursor,
		SortBy: req.SortBy,
	}
}
