package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. Each instance registers
// on its own Registerer so tests can use throwaway registries.
type Metrics struct {
	// AnalysesTotal counts analyses by request type and result status.
	AnalysesTotal *prometheus.CounterVec

	// AnalysisDurationSeconds is end-to-end time per analysis, model call included.
	AnalysisDurationSeconds *prometheus.HistogramVec

	// ModelReady is 1 when the model client initialized.
	ModelReady prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nutrilens",
			Subsystem: "analysis",
			Name:      "total",
			Help:      "Total number of analyses served, labeled by request type and status (success or error).",
		}, []string{"request_type", "status"}),

		AnalysisDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nutrilens",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Time to produce an analysis result, including the model call.",
			// Model calls dominate; keep buckets coarse.
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"request_type"}),

		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nutrilens",
			Subsystem: "model",
			Name:      "ready",
			Help:      "Whether the model client initialized (1) or is degraded (0).",
		}),
	}
	reg.MustRegister(m.AnalysesTotal, m.AnalysisDurationSeconds, m.ModelReady)
	return m
}

// ObserveAnalysis records one finished analysis.
func (m *Metrics) ObserveAnalysis(requestType, status string, elapsed time.Duration) {
	m.AnalysesTotal.WithLabelValues(requestType, status).Inc()
	m.AnalysisDurationSeconds.WithLabelValues(requestType).Observe(elapsed.Seconds())
}

func (m *Metrics) SetModelReady(ready bool) {
	if ready {
		m.ModelReady.Set(1)
		return
	}
	m.ModelReady.Set(0)
}
