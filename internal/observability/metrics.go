package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cictl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "rank",
			Name:      "exchanges_total",
			Help:      "Completed control interface exchanges.",
		},
		[]string{"rank", "op"},
	)
	exchangeAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cictl",
			Subsystem: "rank",
			Name:      "exchange_reads",
			Help:      "Reads needed before every lane of an exchange completed.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		},
		[]string{"rank"},
	)
	timeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "rank",
			Name:      "timeouts_total",
			Help:      "Exchanges that exhausted their retry budget.",
		},
		[]string{"rank", "op"},
	)
	laneFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "rank",
			Name:      "lane_faults_total",
			Help:      "Decode errors and collisions latched per lane.",
		},
		[]string{"rank", "lane", "kind"},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cictl",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Failed commit or update calls.",
		},
		[]string{"rank", "dir"},
	)
	laneTemperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cictl",
			Subsystem: "rank",
			Name:      "lane_temperature_level",
			Help:      "Last reported lane temperature range (0: below 50C .. 7: above 110C).",
		},
		[]string{"rank", "lane"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			exchanges, exchangeAttempts, timeouts, laneFaults, transportErrors, laneTemperature,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordExchange(rank, op string, reads int) {
	RegisterMetrics()
	exchanges.WithLabelValues(rank, op).Inc()
	exchangeAttempts.WithLabelValues(rank).Observe(float64(reads))
}

func RecordTimeout(rank, op string) {
	RegisterMetrics()
	timeouts.WithLabelValues(rank, op).Inc()
}

func RecordLaneFault(rank string, lane int, kind string) {
	RegisterMetrics()
	laneFaults.WithLabelValues(rank, strconv.Itoa(lane), kind).Inc()
}

func RecordTransportError(rank, dir string) {
	RegisterMetrics()
	transportErrors.WithLabelValues(rank, dir).Inc()
}

func SetLaneTemperature(rank string, lane int, level int) {
	RegisterMetrics()
	laneTemperature.WithLabelValues(rank, strconv.Itoa(lane)).Set(float64(level))
}
