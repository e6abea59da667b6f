package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_completion_requests_total",
			Help: "Completion requests by provider and outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	AIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_completion_duration_seconds",
			Help:    "Completion request latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	ChatTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_estimated_tokens_total",
		Help: "Sum of estimated token costs of chat exchanges",
	})

	ChatSummaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_summaries_total",
			Help: "Session summarization attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	AnalyticsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_cache_lookups_total",
			Help: "Analytics cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	AnalyticsJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_jobs_total",
			Help: "Analytics refresh jobs by final status",
		},
		[]string{"status"},
	)

	CachePurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_cache_purged_rows_total",
		Help: "Expired analytics cache rows deleted by housekeeping",
	})
)

// ObserveAI records one provider call.
func ObserveAI(provider, model string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AICalls.WithLabelValues(provider, model, outcome).Inc()
	AIDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RegisterDBStats exposes pool gauges for sqlDB. Call once per process.
func RegisterDBStats(sqlDB *sql.DB) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Open connections in the pool",
	}, func() float64 { return float64(sqlDB.Stats().OpenConnections) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_in_use_connections",
		Help: "Connections currently in use",
	}, func() float64 { return float64(sqlDB.Stats().InUse) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "db_idle_connections",
		Help: "Idle connections in the pool",
	}, func() float64 { return float64(sqlDB.Stats().Idle) })
}
