package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveEntitySearchNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(entitySearchesTotal.WithLabelValues("flows", OutcomeSuccess))
	ObserveEntitySearch("flows", -time.Second, "weird")
	after := testutil.ToFloat64(entitySearchesTotal.WithLabelValues("flows", OutcomeSuccess))
	assert.Equal(t, before+1, after)

	beforeTimeout := testutil.ToFloat64(entitySearchesTotal.WithLabelValues("alarms", OutcomeTimeout))
	ObserveEntitySearch("alarms", time.Millisecond, OutcomeTimeout)
	assert.Equal(t, beforeTimeout+1, testutil.ToFloat64(entitySearchesTotal.WithLabelValues("alarms", OutcomeTimeout)))
}

func TestObserveCorrelationAndCache(t *testing.T) {
	before := testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeEnhanced, OutcomeError))
	ObserveCorrelation(ModeEnhanced, time.Second, OutcomeError)
	assert.Equal(t, before+1, testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeEnhanced, OutcomeError)))

	timeouts := testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeBasic, OutcomeTimeout))
	successes := testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeBasic, OutcomeSuccess))
	ObserveCorrelation(ModeBasic, 30*time.Second, OutcomeTimeout)
	assert.Equal(t, timeouts+1, testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeBasic, OutcomeTimeout)))
	assert.Equal(t, successes, testutil.ToFloat64(correlationsTotal.WithLabelValues(ModeBasic, OutcomeSuccess)))

	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup(true)
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))
}
