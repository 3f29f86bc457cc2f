package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rl1809/scrap-lifecycle/internal/port"
)

const namespace = "scrap"

type PrometheusRecorder struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lotsByStage *prometheus.GaugeVec
}

var _ port.MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the lifecycle collectors on reg. A nil reg
// means the default registry, which is what promhttp.Handler serves.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by requested stage and outcome.",
		}, []string{"stage", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "Time spent applying a lifecycle transition.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		lotsByStage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "lots_by_stage",
			Help:      "Inventory lots per lifecycle stage at the last stats read.",
		}, []string{"stage"}),
	}

	for _, c := range []prometheus.Collector{r.transitions, r.duration, r.lotsByStage} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveTransition(stage, result string, elapsed time.Duration) {
	r.transitions.WithLabelValues(stage, result).Inc()
	r.duration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// SetStageDistribution replaces the gauge set so stages that disappeared stop
// being reported.
func (r *PrometheusRecorder) SetStageDistribution(counts map[string]int) {
	r.lotsByStage.Reset()
	for stage, n := range counts {
		r.lotsByStage.WithLabelValues(stage).Set(float64(n))
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveTransition(string, string, time.Duration) {}
func (Nop) SetStageDistribution(map[string]int)             {}
