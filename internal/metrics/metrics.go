package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrotrack_uploads_total",
			Help: "Workbook uploads by outcome",
		},
		[]string{"status"},
	)

	RowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrotrack_rows_skipped_total",
			Help: "Spreadsheet rows dropped during normalization",
		},
	)

	RoutesInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrotrack_inefficient_routes_inserted_total",
			Help: "Inefficient routes created",
		},
	)

	ExternalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrotrack_external_failures_total",
			Help: "Geocode and routing call failures",
		},
		[]string{"op", "kind"},
	)

	OptimizationsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrotrack_optimizations_saved_total",
			Help: "Routes that received an optimized delivery time",
		},
	)

	PartialFills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrotrack_partial_fill_passes_total",
			Help: "Fill passes cut short by the fill budget",
		},
	)

	FillDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrotrack_fill_pass_duration_seconds",
			Help:    "Duration of optimized-time fill passes",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(RowsSkipped)
	prometheus.MustRegister(RoutesInserted)
	prometheus.MustRegister(ExternalFailures)
	prometheus.MustRegister(OptimizationsSaved)
	prometheus.MustRegister(PartialFills)
	prometheus.MustRegister(FillDuration)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
