package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	triggers      *prom.CounterVec
	buildOutcome  *prom.CounterVec
	buildDuration prom.Histogram
	slugWrites    *prom.CounterVec
	conflicts     prom.Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		triggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dynroute",
			Name:      "triggers_total",
			Help:      "Triggers received by kind",
		}, []string{"kind"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dynroute",
			Name:      "build_outcomes_total",
			Help:      "Slug builds by outcome",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "dynroute",
			Name:      "build_duration_seconds",
			Help:      "Duration of one slug build",
			Buckets:   prom.DefBuckets,
		}),
		slugWrites: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dynroute",
			Name:      "slug_writes_total",
			Help:      "Slug records written by operation",
		}, []string{"op"}),
		conflicts: prom.NewCounter(prom.CounterOpts{
			Namespace: "dynroute",
			Name:      "slug_conflicts_total",
			Help:      "Slug conflicts detected",
		}),
	}
	reg.MustRegister(pr.triggers, pr.buildOutcome, pr.buildDuration, pr.slugWrites, pr.conflicts)
	return pr
}

// Handler serves the recorder's registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) IncTrigger(kind string) {
	p.triggers.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome OutcomeLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddSlugWrites(op string, n int) {
	if n <= 0 {
		return
	}
	p.slugWrites.WithLabelValues(op).Add(float64(n))
}

func (p *PrometheusRecorder) IncConflicts(n int) {
	if n <= 0 {
		return
	}
	p.conflicts.Add(float64(n))
}
