// Package metrics registers the Prometheus instrumentation surface for the
// scan pipeline, modeled on the observability.Metrics pattern found
// elsewhere in the retrieval pack (internal/observability/metrics.go):
// promauto-registered counters, gauges, and histograms grouped by concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter, gauge, and histogram the engine emits.
type Metrics struct {
	ScanRunsTotal      *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	ScanMarketsSeen    prometheus.Gauge
	ScanOpportunities  prometheus.Gauge
	ScanEmitted        prometheus.Gauge

	GateDropsTotal *prometheus.CounterVec

	SourceFetchDuration *prometheus.HistogramVec
	SourceFetchErrors   *prometheus.CounterVec
	SourceStaleServed   *prometheus.CounterVec

	DetectorInvocations *prometheus.CounterVec
	DetectorFailures    *prometheus.CounterVec

	RouterDeliveries *prometheus.CounterVec
	RouterDropped    *prometheus.CounterVec

	LedgerPredictionsRecorded prometheus.Counter
	LedgerResolutionsTotal    prometheus.Counter
	LedgerBrierScore          prometheus.Gauge
}

// New registers every metric under namespace and returns the handle.
// Calling New twice with the same registerer panics, same as any other
// promauto usage -- callers should build one Metrics per process.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fortuna"
	}

	return &Metrics{
		ScanRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "runs_total",
			Help: "Total scans executed, labeled by terminal state (done/aborted).",
		}, []string{"state"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scan", Name: "duration_seconds",
			Help:    "Wall-clock duration of a scan from Plan to Mark.",
			Buckets: prometheus.DefBuckets,
		}),
		ScanMarketsSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "markets_seen",
			Help: "Number of markets extracted from the primary source in the last scan.",
		}),
		ScanOpportunities: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "opportunities_detected",
			Help: "Number of opportunities detectors produced in the last scan, pre-gate.",
		}),
		ScanEmitted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "opportunities_emitted",
			Help: "Number of opportunities routed in the last scan, post-gate.",
		}),

		GateDropsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gate", Name: "drops_total",
			Help: "Opportunities dropped by the gate, labeled by reason.",
		}, []string{"reason"}),

		SourceFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "source", Name: "fetch_duration_seconds",
			Help:    "Latency of a source fetch, labeled by source name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		SourceFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "fetch_errors_total",
			Help: "Fetch failures, labeled by source name.",
		}, []string{"source"}),
		SourceStaleServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "stale_served_total",
			Help: "Times a stale cached value was served after a fetch failure or timeout.",
		}, []string{"source"}),

		DetectorInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "invocations_total",
			Help: "Detector invocations, labeled by detector name.",
		}, []string{"detector"}),
		DetectorFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "detector", Name: "failures_total",
			Help: "Detector failures (error or panic), labeled by detector name.",
		}, []string{"detector"}),

		RouterDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "deliveries_total",
			Help: "Successful sink deliveries, labeled by channel.",
		}, []string{"channel"}),
		RouterDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "dropped_total",
			Help: "Opportunities dropped at the router layer, labeled by reason (no_sink, duplicate, error).",
		}, []string{"reason"}),

		LedgerPredictionsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "predictions_recorded_total",
			Help: "Predictions appended to the calibration ledger.",
		}),
		LedgerResolutionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "resolutions_total",
			Help: "Predictions resolved against a settled outcome.",
		}),
		LedgerBrierScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "brier_score",
			Help: "Most recently computed mean Brier score across resolved predictions.",
		}),
	}
}

// ObserveScan records the terminal state and duration of one scan.
func (m *Metrics) ObserveScan(state string, seconds float64, markets, detected, emitted int) {
	m.ScanRunsTotal.WithLabelValues(state).Inc()
	m.ScanDuration.Observe(seconds)
	m.ScanMarketsSeen.Set(float64(markets))
	m.ScanOpportunities.Set(float64(detected))
	m.ScanEmitted.Set(float64(emitted))
}
