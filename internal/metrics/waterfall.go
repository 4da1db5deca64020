package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WaterfallMetrics instruments the loader, its transport and the analytics
// beacons. Every method is a no-op on a nil receiver so components can run
// without metrics.
type WaterfallMetrics struct {
	// fetch
	FetchRequests *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec
	FetchInFlight prometheus.Gauge

	// serving
	CandidatesServed  prometheus.Counter
	NoFill            prometheus.Counter
	CreativeDownloads *prometheus.CounterVec

	// analytics
	Beacons *prometheus.CounterVec
}

// NewWaterfallMetrics registers the collectors on reg. A nil reg uses the
// default Prometheus registerer.
func NewWaterfallMetrics(reg prometheus.Registerer, namespace, subsystem string) *WaterfallMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &WaterfallMetrics{
		FetchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_requests_total",
			Help:      "Waterfall fetches issued, by stage (initial or refill)",
		}, []string{"stage"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_errors_total",
			Help:      "Failed waterfall fetches, by classified reason",
		}, []string{"reason"}),
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_latency_seconds",
			Help:      "Transport round trip latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"outcome"}),
		FetchInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_in_flight",
			Help:      "Transport requests currently in flight",
		}),
		CandidatesServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "candidates_served_total",
			Help:      "Candidates handed to the caller",
		}),
		NoFill: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "no_fill_total",
			Help:      "Sessions that reached the end of the waterfall",
		}),
		CreativeDownloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "creative_downloads_total",
			Help:      "Creative download outcomes reported by the caller",
		}, []string{"result"}),
		Beacons: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "beacons_total",
			Help:      "Analytics beacons, by outcome (sent, failed, dropped)",
		}, []string{"outcome"}),
	}
}

func (m *WaterfallMetrics) RecordFetch(stage string) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(stage).Inc()
}

func (m *WaterfallMetrics) RecordFetchError(reason string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(reason).Inc()
}

// TransportStarted / TransportFinished bracket one transport round trip.
func (m *WaterfallMetrics) TransportStarted() {
	if m == nil {
		return
	}
	m.FetchInFlight.Inc()
}

func (m *WaterfallMetrics) TransportFinished(success bool, latencySeconds float64) {
	if m == nil {
		return
	}
	m.FetchInFlight.Dec()
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.FetchLatency.WithLabelValues(outcome).Observe(latencySeconds)
}

func (m *WaterfallMetrics) RecordCandidate() {
	if m == nil {
		return
	}
	m.CandidatesServed.Inc()
}

func (m *WaterfallMetrics) RecordNoFill() {
	if m == nil {
		return
	}
	m.NoFill.Inc()
}

func (m *WaterfallMetrics) RecordCreativeDownload(result string) {
	if m == nil {
		return
	}
	m.CreativeDownloads.WithLabelValues(result).Inc()
}

func (m *WaterfallMetrics) RecordBeacon(outcome string) {
	if m == nil {
		return
	}
	m.Beacons.WithLabelValues(outcome).Inc()
}
