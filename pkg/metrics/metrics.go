package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Update attempt metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "molt_updates_total",
			Help: "Total update attempts by outcome",
		},
		[]string{"outcome"},
	)

	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "molt_update_duration_seconds",
			Help:    "Wall-clock duration of update attempts in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}, // 1s to 30min
		},
	)

	// Transfer metrics
	BytesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_bytes_fetched_total",
			Help: "Total bytes fetched from the repository host",
		},
	)

	DeltaBytesSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_delta_bytes_saved_total",
			Help: "Bytes saved by applying deltas instead of full fetches",
		},
	)

	FilesStaged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_files_staged_total",
			Help: "Files verified and placed into the staging area",
		},
	)

	FilesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_files_skipped_total",
			Help: "Files skipped because live content already matched",
		},
	)

	// Swap metrics
	SwapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_swaps_total",
			Help: "Swaps finalized with an installed-version record",
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_rollbacks_total",
			Help: "Swaps rolled back after a mid-swap failure",
		},
	)

	RecoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_boot_recoveries_total",
			Help: "Boot recoveries that restored files from backup",
		},
	)

	StagingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "molt_staging_failures_total",
			Help: "Staging aborts from verification or transfer failures",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(BytesFetched)
	prometheus.MustRegister(DeltaBytesSaved)
	prometheus.MustRegister(FilesStaged)
	prometheus.MustRegister(FilesSkipped)
	prometheus.MustRegister(SwapsTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(RecoveriesTotal)
	prometheus.MustRegister(StagingFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
