// Package metrics exposes Prometheus instrumentation for posting cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pedropost_cycles_total",
			Help: "Total number of posting cycles by outcome",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pedropost_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pedropost_last_success_timestamp_seconds",
			Help: "Unix time of the last published post",
		},
	)

	IdeaIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pedropost_idea_index",
			Help: "Index of the most recently selected idea",
		},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, StageDuration, LastSuccessTimestamp, IdeaIndex)
}

// ObserveStage records how long stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
