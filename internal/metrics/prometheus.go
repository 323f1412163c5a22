package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline counters and latencies to Prometheus. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	trials      *prometheus.CounterVec
	daysScored  *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	monitorVals *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headline_vol_search_trials_total",
				Help: "Hyperparameter trials evaluated, by status",
			},
			[]string{"status"},
		),
		daysScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headline_vol_days_scored_total",
				Help: "Days processed by the batch scorer, by status",
			},
			[]string{"status"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headline_vol_alerts_total",
				Help: "Monitoring alerts fired, by metric",
			},
			[]string{"metric"},
		),
		monitorVals: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "headline_vol_monitoring_value",
				Help: "Latest value of each monitoring metric",
			},
			[]string{"metric"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headline_vol_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTrial(status string) {
	if r == nil {
		return
	}
	r.trials.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordDayScored(status string) {
	if r == nil {
		return
	}
	r.daysScored.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordAlert(metric string) {
	if r == nil {
		return
	}
	r.alerts.WithLabelValues(metric).Inc()
}

func (r *Recorder) RecordMonitoringValue(metric string, value float64) {
	if r == nil {
		return
	}
	r.monitorVals.WithLabelValues(metric).Set(value)
}

// ObserveSince records the time elapsed since start for op.
func (r *Recorder) ObserveSince(op string, start time.Time) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
