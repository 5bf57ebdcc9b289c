// Package metrics exposes Prometheus instrumentation for guard sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pageguard/pageguard/internal/domain"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	SuppressionsTotal    *prometheus.CounterVec
	DetectionTransitions *prometheus.CounterVec
	WatermarkRefreshes   prometheus.Counter
	SessionsActive       prometheus.Gauge
	ProbeFailures        prometheus.Counter
}

// New registers all collectors with reg and returns them. Tests pass a
// private registry to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SuppressionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pageguard_suppressions_total",
			Help: "Suppressed browser actions by kind",
		}, []string{"kind"}),

		DetectionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pageguard_devtools_transitions_total",
			Help: "Devtools heuristic state transitions by direction",
		}, []string{"state"}),

		WatermarkRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "pageguard_watermark_refreshes_total",
			Help: "Watermark overlay regenerations (title changes and repairs)",
		}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pageguard_sessions_active",
			Help: "Currently active protection sessions",
		}),

		ProbeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pageguard_probe_failures_total",
			Help: "Window metric probes that failed and were skipped",
		}),
	}
}

// ObserveSuppression counts one suppressed action.
func (m *Metrics) ObserveSuppression(kind domain.SuppressionKind) {
	m.SuppressionsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveDetection counts one heuristic state transition.
func (m *Metrics) ObserveDetection(sig domain.DetectionSignal) {
	m.DetectionTransitions.WithLabelValues(sig.State.String()).Inc()
}

// Serve exposes /metrics on addr in a background goroutine. The caller
// shuts the returned server down on exit; listen errors are best effort.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
