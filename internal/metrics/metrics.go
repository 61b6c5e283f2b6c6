// Package metrics exposes harvest counters for the node-exporter textfile
// collector. Each Metrics owns its registry, so tests and repeated runs in
// one process never collide on registration.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Change kinds used as the "kind" label of ChangesTotal.
const (
	KindArrival      = "aparece"
	KindDeparture    = "desaparece"
	KindModification = "modificacion"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	Registry *prometheus.Registry

	ListedTotal       prometheus.Counter
	FetchedTotal      prometheus.Counter
	FetchFailedTotal  prometheus.Counter
	ChangesTotal      *prometheus.CounterVec
	DiffFailuresTotal prometheus.Counter
	SnapshotRecords   prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
	PhaseDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ListedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tramites_listed_total",
			Help: "Catalog entries returned by the listing endpoint",
		}),
		FetchedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tramites_fetched_total",
			Help: "Procedure details fetched successfully",
		}),
		FetchFailedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tramites_fetch_failed_total",
			Help: "Procedure details that could not be fetched",
		}),
		ChangesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tramites_changes_total",
			Help: "Changes detected between consecutive snapshots",
		}, []string{"kind"}),
		DiffFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "tramites_diff_failures_total",
			Help: "Field comparisons that failed and were skipped",
		}),
		SnapshotRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "tramites_snapshot_records",
			Help: "Records in the most recent snapshot",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "tramites_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tramites_phase_duration_seconds",
			Help:    "Duration of each run phase",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 900},
		}, []string{"phase"}),
	}
}

// ObservePhase records how long a phase took since start.
func (m *Metrics) ObservePhase(phase string, start time.Time) {
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// RunCompleted stamps the last-run gauge.
func (m *Metrics) RunCompleted(at time.Time) {
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
