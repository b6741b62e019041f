package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for experiments.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder collects sweep metrics on its own registry.
type Recorder struct {
	reg         *prometheus.Registry
	experiments *prometheus.CounterVec
	duration    prometheus.Histogram
	best        prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		experiments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtester_experiments_total",
				Help: "Experiments finished, by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtester_experiment_duration_seconds",
			Help:    "Wall time of one experiment",
			Buckets: prometheus.DefBuckets,
		}),
		best: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtester_best_total_return_pct",
			Help: "Total return of the best experiment of the last sweep",
		}),
	}
	r.reg.MustRegister(r.experiments, r.duration, r.best)
	return r
}

// RecordExperiment counts one experiment. Nil recorders are ignored.
func (r *Recorder) RecordExperiment(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.experiments.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		r.duration.Observe(seconds)
	}
}

func (r *Recorder) RecordBest(totalReturnPct float64) {
	if r == nil {
		return
	}
	r.best.Set(totalReturnPct)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
