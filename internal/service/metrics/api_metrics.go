package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// API tracks latency and errors of the phase endpoints and websocket commands.
type API struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

func NewAPI(reg prometheus.Registerer) *API {
	a := &API{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tradeflow",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of phase API endpoints and commands",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeflow",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by endpoint and kind",
			},
			[]string{"endpoint", "kind"},
		),
	}
	reg.MustRegister(a.latency, a.errors)
	return a
}

// Observe records the time since start for endpoint. Use with defer.
func (a *API) Observe(endpoint string, start time.Time) {
	a.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (a *API) Error(endpoint, kind string) {
	a.errors.WithLabelValues(endpoint, kind).Inc()
}
