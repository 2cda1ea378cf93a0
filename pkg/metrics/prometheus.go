package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsPublished  *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	pipelineDepth    prometheus.Gauge
	latency          *prometheus.HistogramVec
}

// New creates a recorder registered on reg, or on the default registry when reg is nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		eventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_events_published_total",
				Help: "Total number of events handed to the event publisher",
			},
			[]string{"event_type"},
		),
		publishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_publish_failures_total",
				Help: "Events dropped because the publisher failed",
			},
			[]string{"event_type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		orderTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeflow_order_transitions_total",
				Help: "Order status transitions applied by the lifecycle",
			},
			[]string{"from", "to"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeflow_last_price",
				Help: "Close of the last processed bar",
			},
			[]string{"symbol"},
		),
		pipelineDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeflow_event_pipeline_depth",
				Help: "Events waiting in the publish queue",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEventPublished(eventType string) {
	r.eventsPublished.WithLabelValues(eventType).Inc()
}

func (r *Recorder) RecordPublishFailure(eventType string) {
	r.publishFailures.WithLabelValues(eventType).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordOrderTransition(from, to string) {
	r.orderTransitions.WithLabelValues(from, to).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) SetPipelineDepth(n int) {
	r.pipelineDepth.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
