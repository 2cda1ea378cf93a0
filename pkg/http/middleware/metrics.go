package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	applogger "Tradeflow/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	httpOnce sync.Once
	httpM    *httpMetrics
)

func requestMetrics() *httpMetrics {
	httpOnce.Do(func() {
		f := promauto.With(prometheus.DefaultRegisterer)
		labels := []string{"route", "method", "class"}
		httpM = &httpMetrics{
			requests: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tradeflow", Subsystem: "http", Name: "requests_total",
				Help: "HTTP requests by route template, method and status.",
			}, []string{"route", "method", "status"}),
			duration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tradeflow", Subsystem: "http", Name: "request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, labels),
			inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "tradeflow", Subsystem: "http", Name: "in_flight_requests",
				Help: "Requests being served, including open websocket sessions.",
			}, []string{"route"}),
			size: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tradeflow", Subsystem: "http", Name: "response_size_bytes",
				Help:    "HTTP response size. Poll responses grow with the phase's event count.",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			}, labels),
		}
	})
	return httpM
}

// Metrics records request metrics labelled by route template. 5xx responses
// are logged as errors and slow requests as warnings; the websocket route is
// long-lived and never counts as slow.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	m := requestMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.inFlight.WithLabelValues(route).Inc()
			defer m.inFlight.WithLabelValues(route).Dec()
			start := time.Now()

			if err := next(c); err != nil {
				// Render now so the recorded status is the one the client got.
				c.Error(err)
			}

			code := c.Response().Status
			class := statusClass(code)
			elapsed := time.Since(start)
			m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(elapsed.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(c.Response().Size))

			if l == nil {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", code),
				applogger.Duration("elapsed", elapsed),
			}
			switch {
			case code >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && elapsed >= slowThreshold && route != "/ws":
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
