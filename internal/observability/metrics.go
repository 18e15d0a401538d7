package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rdmsession",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	transportFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Transport frames by direction and kind.",
		},
		[]string{"direction", "kind"},
	)
	transportBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Socket bytes by direction.",
		},
		[]string{"direction"},
	)
	transportQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "transport",
			Name:      "queued_writes_total",
			Help:      "Writes that could not be sent immediately and were queued.",
		},
	)
	transportReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "transport",
			Name:      "recoveries_total",
			Help:      "Connections torn down and marked for reconnect.",
		},
		[]string{"reason"},
	)
	streamRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "provider",
			Name:      "rejects_total",
			Help:      "Requests answered with a reject status.",
		},
		[]string{"domain", "code"},
	)
	dictionaryParts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rdmsession",
			Subsystem: "dictionary",
			Name:      "parts_total",
			Help:      "Dictionary refresh parts by name and direction.",
		},
		[]string{"name", "direction"},
	)
	loginRTT = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rdmsession",
			Subsystem: "login",
			Name:      "rtt_seconds",
			Help:      "Observed round-trip latency of login RTT probes.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			transportFrames,
			transportBytes,
			transportQueued,
			transportReconnects,
			streamRejects,
			dictionaryParts,
			loginRTT,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(direction, kind string) {
	RegisterMetrics()
	transportFrames.WithLabelValues(direction, kind).Inc()
}

func RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	transportBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordQueuedWrite() {
	RegisterMetrics()
	transportQueued.Inc()
}

func RecordRecovery(reason string) {
	RegisterMetrics()
	transportReconnects.WithLabelValues(reason).Inc()
}

func RecordReject(domain, code string) {
	RegisterMetrics()
	streamRejects.WithLabelValues(domain, code).Inc()
}

func RecordDictionaryPart(name, direction string) {
	RegisterMetrics()
	dictionaryParts.WithLabelValues(name, direction).Inc()
}

func ObserveRTT(d time.Duration) {
	RegisterMetrics()
	loginRTT.Observe(d.Seconds())
}
