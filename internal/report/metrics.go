package report

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/labtiva/curator/internal/action"
)

// PushJob is the Pushgateway job name runs are grouped under.
const PushJob = "curator"

// Metrics collects per-run counters for one process. Runs are short
// lived, so the registry is pushed rather than scraped.
type Metrics struct {
	reg      *prometheus.Registry
	entities *prometheus.CounterVec
	duration *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_entities_total",
			Help: "Entities handled by an action, by outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curator_run_duration_seconds",
			Help: "Wall time of the last run of an action.",
		}, []string{"action"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curator_last_run_timestamp_seconds",
			Help: "Start time of the last run of an action.",
		}, []string{"action"}),
	}
	m.reg.MustRegister(m.entities, m.duration, m.lastRun)
	return m
}

// Observe records res. Dry runs count their selection under outcome
// "dry_run" and leave the timing gauges alone.
func (m *Metrics) Observe(res action.Result) {
	name := res.Name()
	if res.DryRun {
		m.entities.WithLabelValues(name, "dry_run").Add(float64(len(res.Attempted)))
		return
	}
	m.entities.WithLabelValues(name, "succeeded").Add(float64(len(res.Succeeded)))
	m.entities.WithLabelValues(name, "failed").Add(float64(len(res.Failed)))
	m.entities.WithLabelValues(name, "skipped").Add(float64(len(res.Skipped)))
	m.duration.WithLabelValues(name).Set(res.Duration.Seconds())
	if !res.StartedAt.IsZero() {
		m.lastRun.WithLabelValues(name).Set(float64(res.StartedAt.Unix()))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Push sends the collected metrics to the Pushgateway at url, replacing
// the previous push of this job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, PushJob).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
