package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// metrics are per server so several servers (tests) never share a registry
type metrics struct {
	registry   *prometheus.Registry
	uploads    *prometheus.CounterVec
	detections *prometheus.CounterVec
	exports    *prometheus.CounterVec
	sessions   prometheus.GaugeFunc
}

func newMetrics(liveSessions func() float64) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dental_vision_uploads_total",
			Help: "Image uploads by outcome",
		}, []string{"outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dental_vision_detections_total",
			Help: "Model detection requests by task and outcome",
		}, []string{"task", "outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dental_vision_exports_total",
			Help: "Annotation exports by kind, failing artifact and outcome",
		}, []string{"kind", "artifact", "outcome"}),
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dental_vision_sessions",
			Help: "Live upload sessions",
		}, liveSessions),
	}

	m.registry.MustRegister(
		m.uploads, m.detections, m.exports, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
