package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics instruments the demo waterfall server.
type ServerMetrics struct {
	AdRequests     *prometheus.CounterVec
	TrackingEvents *prometheus.CounterVec
	StoreCache     *prometheus.CounterVec
}

func NewServerMetrics(reg prometheus.Registerer, namespace string) *ServerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ServerMetrics{
		AdRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adserver",
			Name:      "ad_requests_total",
			Help:      "Waterfall page requests, by result",
		}, []string{"result"}),
		TrackingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adserver",
			Name:      "tracking_events_total",
			Help:      "Analytics beacons received, by event and load result",
		}, []string{"event", "result"}),
		StoreCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adserver",
			Name:      "store_cache_total",
			Help:      "Waterfall store cache lookups (hit or miss)",
		}, []string{"result"}),
	}
}

func (m *ServerMetrics) RecordAdRequest(result string) {
	if m == nil {
		return
	}
	m.AdRequests.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) RecordTracking(event, result string) {
	if m == nil {
		return
	}
	m.TrackingEvents.WithLabelValues(event, result).Inc()
}

func (m *ServerMetrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StoreCache.WithLabelValues(result).Inc()
}
