package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddx_report_duration_seconds",
			Help:    "Analytics report build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"source"},
	)

	ReportTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddx_report_total",
			Help: "Total analytics report requests",
		},
		[]string{"status"},
	)

	SubmissionsAggregated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddx_submissions_aggregated",
			Help:    "Eligible submissions folded into each report",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	KeyCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddx_answer_key_collisions_total",
			Help: "Answer-key names claimed by more than one entry",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddx_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddx_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DataSourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddx_data_source_errors_total",
			Help: "Failed reads against the data source",
		},
		[]string{"query"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddx_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddx_live_connections",
			Help: "Open live analytics websocket connections",
		},
	)

	TopicVoteNotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddx_topic_vote_notes_encoded_total",
			Help: "Topic-vote notes encoded through the API",
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ReportDuration)
		prometheus.MustRegister(ReportTotal)
		prometheus.MustRegister(SubmissionsAggregated)
		prometheus.MustRegister(KeyCollisions)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(DataSourceErrors)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(LiveConnections)
		prometheus.MustRegister(TopicVoteNotes)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
