package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

func TestMergeQuery(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		addition string
		want     string
	}{
		{"empty base", "", "ts:100-200", "ts:100-200"},
		{"wraps base", "severity:high", "ts:100-200", "(severity:high) AND ts:100-200"},
		{"keeps precedence", "a:1 OR b:2", "c:3", "(a:1 OR b:2) AND c:3"},
		{"empty addition", "severity:high", "", "severity:high"},
		{"both empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeQuery(tt.base, tt.addition))
		})
	}
}

func TestParseTimeRange(t *testing.T) {
	tr, err := ParseTimeRange("2024-03-01T10:00:00Z", "2024-03-01T11:00:00+00:00")
	require.NoError(t, err)
	assert.Equal(t, "ts:1709287200-1709290800", TimeRangeClause(tr))

	_, err = ParseTimeRange("yesterday", "2024-03-01T11:00:00Z")
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))

	_, err = ParseTimeRange("2024-03-02T00:00:00Z", "2024-03-01T00:00:00Z")
	require.Error(t, err)
	assert.True(t, utils.IsValidation(err))
}

func TestEqualityClause(t *testing.T) {
	assert.Equal(t, "device.ip:10.0.0.1", EqualityClause("device.ip", "10.0.0.1"))
	assert.Equal(t, "device.ip:(10.0.0.1 OR 10.0.0.2)", EqualityClause("device.ip", "10.0.0.1", " ", "10.0.0.2"))
	assert.Equal(t, `device.name:"Mac Book"`, EqualityClause("device.name", "Mac Book"))
	assert.Equal(t, `remote.domain:"a\"b"`, EqualityClause("remote.domain", `a"b`))
	assert.Equal(t, "", EqualityClause("device.ip"))
}

func TestBuild(t *testing.T) {
	tr := NewTranslator(0, 0)
	q, err := tr.Build(models.SearchRequest{
		EntityType: models.EntityAlarms,
		Query:      "status:active",
		Filters:    map[string]string{"type": "1", "device.ip": "10.0.0.5"},
		TimeRange:  &models.TimeRangeInput{Start: "2024-03-01T10:00:00Z", End: "2024-03-01T11:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, "(((status:active) AND device.ip:10.0.0.5) AND type:1) AND ts:1709287200-1709290800", q)

	_, err = tr.Build(models.SearchRequest{Query: "x", TimeRange: &models.TimeRangeInput{Start: "bad", End: "bad"}})
	assert.Error(t, err)
}

func TestFetchLimit(t *testing.T) {
	tr := NewTranslator(200, 1000)
	assert.Equal(t, 200, tr.FetchLimit(0))
	assert.Equal(t, 50, tr.FetchLimit(50))
	assert.Equal(t, 1000, tr.FetchLimit(5000))

	capped := NewTranslator(50000, 50000)
	assert.Equal(t, models.MaxSearchLimit, capped.FetchLimit(0))

	opts := tr.Options(models.SearchRequest{Limit: 10, Cursor: "abc", SortBy: "ts:desc"})
	assert.Equal(t, models.SearchOptions{Limit: 10, Cursor: "abc", SortBy: "ts:desc"}, opts)
}
