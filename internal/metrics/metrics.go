package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wiimwatch/internal/models"
	"wiimwatch/internal/view"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics collects poll loop statistics on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	fetches  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rows     prometheus.Gauge
	halts    prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiim_fetch_total",
			Help: "Fetches issued against the WIIM API by target kind and result.",
		}, []string{"kind", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiim_fetch_duration_seconds",
			Help:    "Duration of a single fetch including decoding.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wiim_rows",
			Help: "Cards currently shown on the detail screen.",
		}),
		halts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wiim_halts_total",
			Help: "Times polling stopped on an error dialog.",
		}),
	}
	m.registry.MustRegister(m.fetches, m.latency, m.rows, m.halts)
	return m
}

// ObserveFetch records one fetch.
func (m *Metrics) ObserveFetch(kind models.Kind, elapsed time.Duration, err error) {
	result := resultOK
	if err != nil {
		result = resultError
		m.halts.Inc()
	}
	m.fetches.WithLabelValues(string(kind), result).Inc()
	m.latency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Redraw tracks the number of rendered cards.
func (m *Metrics) Redraw(state view.State) {
	m.rows.Set(float64(len(state.Rows)))
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
