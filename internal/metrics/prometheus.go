package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vitalwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_polls_total",
			Help: "Sample polls by stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_analyses_total",
			Help: "Anomaly analyses by branch (remote or fallback)",
		},
		[]string{"branch"},
	)

	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_refresh_cycles_total",
			Help: "Dashboard refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vitalwatch_refresh_duration_seconds",
			Help:    "Dashboard refresh cycle duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	refreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitalwatch_refresh_coalesced_total",
			Help: "Refresh calls that joined an in-flight cycle",
		},
	)

	persistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_persistence_failures_total",
			Help: "Failed storage operations replaced by in-memory defaults",
		},
		[]string{"operation"},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitalwatch_alerts_total",
			Help: "Emergency alerts by outcome",
		},
		[]string{"outcome"},
	)

	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vitalwatch_ws_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordPoll(stream string, err error) {
	pollsTotal.WithLabelValues(stream, outcome(err)).Inc()
}

func RecordAnalysis(branch string) {
	analysesTotal.WithLabelValues(branch).Inc()
}

func RecordRefresh(err error, duration time.Duration) {
	refreshTotal.WithLabelValues(outcome(err)).Inc()
	refreshDuration.Observe(duration.Seconds())
}

func RecordRefreshCoalesced() {
	refreshCoalesced.Inc()
}

func RecordPersistenceFailure(operation string) {
	persistenceFailures.WithLabelValues(operation).Inc()
}

func RecordAlert(err error) {
	alertsTotal.WithLabelValues(outcome(err)).Inc()
}

func SetWSClients(n int) {
	wsClients.Set(float64(n))
}
