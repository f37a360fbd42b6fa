package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{Namespace: "resolver"}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func scrape(t *testing.T, c MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNewMetricsCollectorRequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestCounterAppearsInScrape(t *testing.T) {
	c := newTestCollector(t)
	vec := c.RegisterCounter("test_events_total", "Test events", "kind")
	vec.WithLabelValues("a").Inc()
	vec.WithLabelValues("a").Add(2)

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_test_events_total{kind="a"} 3`)
}

func TestDuplicateRegistrationReturnsSameMetric(t *testing.T) {
	c := newTestCollector(t)
	first := c.RegisterCounter("dup_total", "Duplicate", "kind")
	second := c.RegisterCounter("dup_total", "Duplicate", "kind")

	first.WithLabelValues("x").Inc()
	second.WithLabelValues("x").Inc()

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_dup_total{kind="x"} 2`)
}

func TestRecordResolution(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordResolution("AUTO_ACCEPT", "EXACT", 0.97, 0.4, 2*time.Millisecond)
	m.RecordResolution("REVIEW", "FUZZY", 0.81, 0.03, 5*time.Millisecond)

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_resolutions_total{band="AUTO_ACCEPT",match_method="EXACT"} 1`)
	assert.Contains(t, body, `resolver_resolutions_total{band="REVIEW",match_method="FUZZY"} 1`)
	assert.Contains(t, body, "resolver_resolution_confidence_bucket")
}

func TestRecordValidationOutcomes(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordValidation(false)
	m.RecordValidation(true)
	m.RecordValidation(true)

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_validations_total{outcome="confirmed"} 1`)
	assert.Contains(t, body, `resolver_validations_total{outcome="corrected"} 2`)
}

func TestRecordCacheAccess(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordCacheAccess("resolve", true)
	m.RecordCacheAccess("resolve", false)

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_cache_hits_total{cache="resolve"} 1`)
	assert.Contains(t, body, `resolver_cache_misses_total{cache="resolve"} 1`)
}

func TestSetHealth(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.SetHealth("postgres", true)
	m.SetHealth("milvus", false)

	body := scrape(t, c)
	assert.Contains(t, body, `resolver_health_check_status{component="postgres"} 1`)
	assert.Contains(t, body, `resolver_health_check_status{component="milvus"} 0`)
}

func TestTimerObserves(t *testing.T) {
	c := newTestCollector(t)
	hist := c.RegisterHistogram("op_duration_seconds", "Op duration", nil, "op")

	timer := NewTimer(hist.WithLabelValues("build"))
	timer.ObserveDuration()

	body := scrape(t, c)
	assert.True(t, strings.Contains(body, `resolver_op_duration_seconds_count{op="build"} 1`))
}

func TestTimerNilHistogram(t *testing.T) {
	assert.NotPanics(t, func() {
		NewTimer(nil).ObserveDuration()
	})
}
