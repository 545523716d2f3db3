package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	StationFetches     *prometheus.CounterVec // labels: feed={now,historical}, outcome={ok,error}
	RowsUpserted       *prometheus.CounterVec // labels: source={chmi_now,chmi_daily}
	StationsDiscovered prometheus.Counter
	StationsRefreshed  prometheus.Counter
	RunsFinished       *prometheus.CounterVec // labels: kind, status
	RunDuration        *prometheus.HistogramVec
	FreshnessGate      *prometheus.CounterVec // labels: outcome={fresh,refreshed,busy,error}
	BackfillRemaining  prometheus.Gauge
	IngestRunning      prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StationFetches,
		m.RowsUpserted,
		m.StationsDiscovered,
		m.StationsRefreshed,
		m.RunsFinished,
		m.RunDuration,
		m.FreshnessGate,
		m.BackfillRemaining,
		m.IngestRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "station_fetches_total",
			Help:      "Per-station upstream fetches by feed and outcome.",
		}, []string{"feed", "outcome"}),
		RowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "measurement_rows_upserted_total",
			Help:      "Measurement rows actually written, by source tag.",
		}, []string{"source"}),
		StationsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "stations_discovered_total",
			Help:      "New placeholder stations inserted from the index.",
		}),
		StationsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "stations_refreshed_total",
			Help:      "Stations upserted from metadata refresh.",
		}),
		RunsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "ingest_runs_finished_total",
			Help:      "Finalized ingest runs by kind and status.",
		}, []string{"kind", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hydro",
			Name:      "ingest_run_duration_seconds",
			Help:      "Duration of orchestrated ingest runs by kind.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"kind"}),
		FreshnessGate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "freshness_gate_total",
			Help:      "On-demand refresh outcomes from the read path.",
		}, []string{"outcome"}),
		BackfillRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydro",
			Name:      "backfill_files_remaining",
			Help:      "Pending historical files after the latest backfill batch.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydro",
			Name:      "ingest_running",
			Help:      "1 while an orchestrated ingest operation is active.",
		}),
	}
}
