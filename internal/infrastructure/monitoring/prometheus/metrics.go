package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the resolver exports.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Resolution
	ResolutionsTotal     CounterVec
	ResolutionDuration   HistogramVec
	ResolutionConfidence HistogramVec
	ResolutionMargin     HistogramVec
	VendorBoostsTotal    CounterVec
	MethodConflictsTotal CounterVec
	VectorSearchDuration HistogramVec

	// Review and learning
	ValidationsTotal       CounterVec
	SynonymPromotionsTotal CounterVec
	SynonymCapRejections   CounterVec
	ConsensusResets        CounterVec

	// Corpus lifecycle
	SnapshotBuildDuration HistogramVec
	SnapshotEntries       GaugeVec
	SnapshotAnalytes      GaugeVec
	CalibrationRunsTotal  CounterVec
	ThresholdValue        GaugeVec

	// Infrastructure
	DBQueryDuration       HistogramVec
	CacheHitsTotal        CounterVec
	CacheMissesTotal      CounterVec
	EventsPublishedTotal  CounterVec
	HealthCheckStatus     GaugeVec
	ErrorsTotal           CounterVec
}

var (
	httpDurationBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	resolveDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	buildDurationBuckets   = []float64{1, 5, 10, 30, 60, 120, 300, 600}
	dbDurationBuckets      = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}
	scoreBuckets           = []float64{.5, .6, .7, .75, .8, .84, .88, .93, .96, .99, 1}
	marginBuckets          = []float64{0, .01, .02, .05, .1, .2, .3, .5}
)

// NewAppMetrics registers the full metric set on the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", httpDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method", "path")

	m.ResolutionsTotal = collector.RegisterCounter("resolutions_total", "Resolve calls by outcome", "band", "match_method")
	m.ResolutionDuration = collector.RegisterHistogram("resolution_duration_seconds", "Resolve call duration", resolveDurationBuckets, "match_method")
	m.ResolutionConfidence = collector.RegisterHistogram("resolution_confidence", "Final confidence score distribution", scoreBuckets, "band")
	m.ResolutionMargin = collector.RegisterHistogram("resolution_margin", "Top-two candidate margin distribution", marginBuckets, "band")
	m.VendorBoostsTotal = collector.RegisterCounter("vendor_boosts_total", "Resolutions where a vendor prior boosted the score", "lab_vendor")
	m.MethodConflictsTotal = collector.RegisterCounter("method_conflicts_total", "Resolutions capped by cross-method disagreement")
	m.VectorSearchDuration = collector.RegisterHistogram("vector_search_duration_seconds", "Semantic tier search duration", resolveDurationBuckets, "backend")

	m.ValidationsTotal = collector.RegisterCounter("validations_total", "Reviewer verdicts", "outcome")
	m.SynonymPromotionsTotal = collector.RegisterCounter("synonym_promotions_total", "Synonyms promoted into the corpus", "harvest_source")
	m.SynonymCapRejections = collector.RegisterCounter("synonym_cap_rejections_total", "Promotions deferred by the daily cap")
	m.ConsensusResets = collector.RegisterCounter("consensus_resets_total", "Variant consensus resets after collisions")

	m.SnapshotBuildDuration = collector.RegisterHistogram("snapshot_build_duration_seconds", "Corpus snapshot build duration", buildDurationBuckets, "index_type")
	m.SnapshotEntries = collector.RegisterGauge("snapshot_entries", "Entries in the active snapshot", "index_type")
	m.SnapshotAnalytes = collector.RegisterGauge("snapshot_analytes", "Distinct analytes in the active snapshot", "index_type")
	m.CalibrationRunsTotal = collector.RegisterCounter("calibration_runs_total", "Threshold calibration runs", "status")
	m.ThresholdValue = collector.RegisterGauge("threshold_value", "Current banding threshold", "threshold")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", dbDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Kafka events published", "topic", "status")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Component health (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component", "component", "error_type")

	return m
}

// RecordHTTPRequest observes one completed request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordResolution observes one resolve outcome.
func (m *AppMetrics) RecordResolution(band, method string, confidence, margin float64, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(band, method).Inc()
	m.ResolutionDuration.WithLabelValues(method).Observe(duration.Seconds())
	m.ResolutionConfidence.WithLabelValues(band).Observe(confidence)
	m.ResolutionMargin.WithLabelValues(band).Observe(margin)
}

// RecordValidation counts a reviewer verdict.
func (m *AppMetrics) RecordValidation(corrected bool) {
	outcome := "confirmed"
	if corrected {
		outcome = "corrected"
	}
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheAccess counts a cache hit or miss.
func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordEventPublished counts a Kafka publish attempt.
func (m *AppMetrics) RecordEventPublished(topic string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

// RecordSnapshotActivated updates the active-snapshot gauges.
func (m *AppMetrics) RecordSnapshotActivated(indexType string, entries, analytes int) {
	m.SnapshotEntries.WithLabelValues(indexType).Set(float64(entries))
	m.SnapshotAnalytes.WithLabelValues(indexType).Set(float64(analytes))
}

// RecordError counts a component error.
func (m *AppMetrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// SetHealth publishes a component health flag.
func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
