package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RingSlots reports the configured capacity of a ring (0 = unbounded).
	RingSlots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habitat_ring_slots",
			Help: "Configured slot capacity of a ring (0 means unbounded)",
		},
		[]string{"file", "ring", "kind"},
	)

	// RingOccupancy reports how many records a ring currently holds.
	RingOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habitat_ring_occupancy",
			Help: "Number of records currently stored in a ring",
		},
		[]string{"file", "ring", "kind"},
	)

	// ContainerFootprintBytes reports the on-disk size of a container file.
	ContainerFootprintBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habitat_container_footprint_bytes",
			Help: "On-disk size in bytes of a container file",
		},
		[]string{"file"},
	)

	// TxTotal counts transactions by layer and outcome.
	TxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitat_tx_total",
			Help: "Total number of transactions by layer and outcome",
		},
		[]string{"layer", "outcome"},
	)

	// TxDuration records transaction latency by layer and outcome.
	TxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habitat_tx_duration_seconds",
			Help:    "Transaction duration in seconds by layer and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"layer", "outcome"},
	)

	// TxBusyRetriesTotal counts write-slot acquisition retries before
	// either succeeding or exhausting the retry budget (storeerr.Busy).
	TxBusyRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitat_tx_busy_retries_total",
			Help: "Total number of write transaction acquisition retries by layer",
		},
		[]string{"layer"},
	)

	// SpanCount reports how many spans a tablestore ring currently carries.
	SpanCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habitat_tablestore_spans",
			Help: "Number of schema spans currently tracked for a table ring",
		},
		[]string{"file", "ring"},
	)
)

func init() {
	prometheus.MustRegister(RingSlots)
	prometheus.MustRegister(RingOccupancy)
	prometheus.MustRegister(ContainerFootprintBytes)
	prometheus.MustRegister(TxTotal)
	prometheus.MustRegister(TxDuration)
	prometheus.MustRegister(TxBusyRetriesTotal)
	prometheus.MustRegister(SpanCount)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveTx records a completed transaction's duration, outcome, and
// running total for layer (e.g. "container", "holstore"). outcome is
// "ok", "busy", or "error".
func ObserveTx(layer string, start time.Time, outcome string) {
	TxTotal.WithLabelValues(layer, outcome).Inc()
	TxDuration.WithLabelValues(layer, outcome).Observe(time.Since(start).Seconds())
}

// IncBusyRetry records one write-slot acquisition retry for layer.
func IncBusyRetry(layer string) {
	TxBusyRetriesTotal.WithLabelValues(layer).Inc()
}
