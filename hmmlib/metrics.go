package hmmlib

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Training method labels used by Metrics.
const (
	MethodViterbi   = "viterbi"
	MethodBaumWelch = "baumwelch"
)

// Metrics are the Prometheus collectors updated by a Trainer.
type Metrics struct {
	Iterations    *prometheus.CounterVec
	IterationTime *prometheus.HistogramVec
	LogLikelihood prometheus.Gauge
	PathWeight    prometheus.Gauge
}

// NewMetrics creates the training collectors and registers them with
// reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {

	m := &Metrics{
		Iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seqhmm_iterations_total",
				Help: "Completed training iterations.",
			},
			[]string{"method"},
		),
		IterationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seqhmm_iteration_seconds",
				Help:    "Wall time of one training iteration.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"method"},
		),
		LogLikelihood: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "seqhmm_log_likelihood_bits",
				Help: "Base 2 log-likelihood of the sequence after the last Baum-Welch iteration.",
			},
		),
		PathWeight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "seqhmm_path_weight_bits",
				Help: "Base 2 log weight of the Viterbi path after the last Viterbi iteration.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Iterations, m.IterationTime, m.LogLikelihood, m.PathWeight)
	}

	return m
}

// observe records one finished iteration.  m may be nil.
func (m *Metrics) observe(method string, start time.Time) {
	if m == nil {
		return
	}
	m.Iterations.WithLabelValues(method).Inc()
	m.IterationTime.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
