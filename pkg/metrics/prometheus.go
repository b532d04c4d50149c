// Package metrics provides Prometheus metrics for the scoutq service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the scoutq service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingress metrics
	spawnsReceived  *prometheus.CounterVec
	censusReceived  prometheus.Counter
	eventsDiscarded *prometheus.CounterVec

	// Queue metrics
	queueDepth    prometheus.Gauge
	queueEnqueued *prometheus.CounterVec
	queueDeduped  prometheus.Counter
	queueExpired  prometheus.Counter

	// Dispatch metrics
	outstandingScouts prometheus.Gauge
	scoutsDispatched  *prometheus.CounterVec
	scoutMatches      *prometheus.CounterVec
	scoutEarlyIV      *prometheus.CounterVec
	scoutTimeouts     *prometheus.CounterVec
	scoutFailures     prometheus.Counter
	scoutIssueLatency prometheus.Histogram

	// Rarity metrics
	rarityAreas        prometheus.Gauge
	rarityActiveSpawns prometheus.Gauge
	rarityRecords      prometheus.Gauge

	// Geofence metrics
	geofenceAreas           prometheus.Gauge
	geofenceRefreshes       prometheus.Counter
	geofenceRefreshFailures prometheus.Counter

	// Config metrics
	configReloads       prometheus.Counter
	configReloadFailures prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoutq",
		subsystem:        "coordinator",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // metric registration is naturally long
	auto := promauto.With(m.registry)

	m.spawnsReceived = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "spawns_received_total",
			Help:      "Total spawn webhooks received by seen type",
		},
		[]string{"seen_type"},
	)

	m.censusReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "census_received_total",
		Help:      "Total census webhooks received",
	})

	m.eventsDiscarded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_discarded_total",
			Help:      "Spawn events discarded during classification by reason",
		},
		[]string{"reason"},
	)

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of queued scout requests",
	})

	m.queueEnqueued = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "queue_enqueued_total",
			Help:      "Scout requests enqueued by source list",
		},
		[]string{"source"},
	)

	m.queueDeduped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_deduped_total",
		Help:      "Enqueue attempts skipped because the identity was already queued or dispatched",
	})

	m.queueExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_expired_total",
		Help:      "Queued entries dropped because their spawn despawned",
	})

	m.outstandingScouts = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outstanding_scouts",
		Help:      "Scout requests dispatched and awaiting IV or timeout",
	})

	m.scoutsDispatched = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "scouts_dispatched_total",
			Help:      "Scout calls issued by seen type",
		},
		[]string{"seen_type"},
	)

	m.scoutMatches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "scout_matches_total",
			Help:      "Dispatched scouts resolved by a matching IV webhook",
		},
		[]string{"seen_type"},
	)

	m.scoutEarlyIV = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "scout_early_iv_total",
			Help:      "IV webhooks that arrived with no dispatched scout outstanding",
		},
		[]string{"seen_type"},
	)

	m.scoutTimeouts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "scout_timeouts_total",
			Help:      "Dispatched scouts that reached their deadline without IV",
		},
		[]string{"seen_type"},
	)

	m.scoutFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scout_failures_total",
		Help:      "Scout calls that failed at issuance",
	})

	m.scoutIssueLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scout_issue_latency_milliseconds",
		Help:      "Latency of the outbound scout call in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.rarityAreas = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rarity_areas",
		Help:      "Areas with census data",
	})

	m.rarityActiveSpawns = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rarity_active_spawns",
		Help:      "Active spawns currently tracked by the census",
	})

	m.rarityRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rarity_records",
		Help:      "Distinct species records tracked across all areas",
	})

	m.geofenceAreas = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geofence_areas",
		Help:      "Areas in the current geofence snapshot",
	})

	m.geofenceRefreshes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geofence_refreshes_total",
		Help:      "Successful geofence refreshes",
	})

	m.geofenceRefreshFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "geofence_refresh_failures_total",
		Help:      "Failed geofence refreshes",
	})

	m.configReloads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "config_reloads_total",
		Help:      "Successful configuration reloads",
	})

	m.configReloadFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "config_reload_failures_total",
		Help:      "Configuration reloads rejected",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordSpawnReceived increments the spawns received counter for a seen type.
func RecordSpawnReceived(seenType string) {
	globalManager.spawnsReceived.WithLabelValues(seenType).Inc()
}

// RecordCensusReceived increments the census received counter.
func RecordCensusReceived() {
	globalManager.censusReceived.Inc()
}

// RecordEventDiscarded increments the discarded events counter for a reason.
func RecordEventDiscarded(reason string) {
	globalManager.eventsDiscarded.WithLabelValues(reason).Inc()
}

// UpdateQueueDepth sets the current queue depth.
func UpdateQueueDepth(depth int) {
	globalManager.queueDepth.Set(float64(depth))
}

// RecordEnqueued increments the enqueued counter for a source list.
func RecordEnqueued(source string) {
	globalManager.queueEnqueued.WithLabelValues(source).Inc()
}

// RecordDeduped increments the duplicate-enqueue counter.
func RecordDeduped() {
	globalManager.queueDeduped.Inc()
}

// RecordQueueExpired increments the expired-entry counter.
func RecordQueueExpired() {
	globalManager.queueExpired.Inc()
}

// UpdateOutstandingScouts sets the outstanding scout gauge.
func UpdateOutstandingScouts(count int) {
	globalManager.outstandingScouts.Set(float64(count))
}

// RecordScoutDispatched increments the dispatched counter for a seen type.
func RecordScoutDispatched(seenType string) {
	globalManager.scoutsDispatched.WithLabelValues(seenType).Inc()
}

// RecordScoutMatch increments the match counter for a seen type.
func RecordScoutMatch(seenType string) {
	globalManager.scoutMatches.WithLabelValues(seenType).Inc()
}

// RecordEarlyIV increments the early-IV counter for a seen type.
func RecordEarlyIV(seenType string) {
	globalManager.scoutEarlyIV.WithLabelValues(seenType).Inc()
}

// RecordScoutTimeout increments the timeout counter for a seen type.
func RecordScoutTimeout(seenType string) {
	globalManager.scoutTimeouts.WithLabelValues(seenType).Inc()
}

// RecordScoutFailure increments the issuance failure counter.
func RecordScoutFailure() {
	globalManager.scoutFailures.Inc()
}

// RecordScoutIssueLatency records outbound scout call latency.
func RecordScoutIssueLatency(latencyMs float64) {
	globalManager.scoutIssueLatency.Observe(latencyMs)
}

// UpdateRarityAreas sets the tracked-areas gauge.
func UpdateRarityAreas(count int) {
	globalManager.rarityAreas.Set(float64(count))
}

// UpdateRarityActiveSpawns sets the active-spawns gauge.
func UpdateRarityActiveSpawns(count int) {
	globalManager.rarityActiveSpawns.Set(float64(count))
}

// UpdateRarityRecords sets the species-records gauge.
func UpdateRarityRecords(count int) {
	globalManager.rarityRecords.Set(float64(count))
}

// UpdateGeofenceAreas sets the geofence-areas gauge.
func UpdateGeofenceAreas(count int) {
	globalManager.geofenceAreas.Set(float64(count))
}

// RecordGeofenceRefresh increments the successful refresh counter.
func RecordGeofenceRefresh() {
	globalManager.geofenceRefreshes.Inc()
}

// RecordGeofenceRefreshFailure increments the failed refresh counter.
func RecordGeofenceRefreshFailure() {
	globalManager.geofenceRefreshFailures.Inc()
}

// RecordConfigReload increments the successful reload counter.
func RecordConfigReload() {
	globalManager.configReloads.Inc()
}

// RecordConfigReloadFailure increments the rejected reload counter.
func RecordConfigReloadFailure() {
	globalManager.configReloadFailures.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
