package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder records settlement events as Prometheus counters and
// latency histograms, tagged by network, hook type and outcome.
type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors on reg, or on the
// default registerer when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402router",
			Name:      "events_total",
			Help:      "settlement facilitator event counters",
		},
		[]string{"event", LabelNetwork, LabelHookType, LabelOutcome},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402router",
			Name:      "latency_seconds",
			Help:      "settlement facilitator operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", LabelNetwork, LabelHookType},
	)

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.WithLabelValues(
		name,
		labels[LabelNetwork],
		labels[LabelHookType],
		labels[LabelOutcome],
	).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, duration time.Duration, labels map[string]string) {
	p.histogram.WithLabelValues(
		name,
		labels[LabelNetwork],
		labels[LabelHookType],
	).Observe(duration.Seconds())
}
